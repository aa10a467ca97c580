package repo

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("FINBOT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("FINBOT_TEST_DATABASE_URL not set")
	}
	s, err := NewPostgres(context.Background(), url, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	storeContract(t, s)
}
