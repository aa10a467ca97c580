package convo

import (
	"sort"
	"strings"

	"finbot/internal/domain"
)

// matchAccount finds the account a user refers to by name, partial name or
// type ("set bank as default"). Ties go to the default account, then the
// oldest.
func matchAccount(accounts []domain.Account, query string) (domain.Account, bool) {
	if acc, ok := domain.FindAccount(accounts, query); ok {
		return acc, true
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return domain.Account{}, false
	}

	type scored struct {
		acc   domain.Account
		score int
	}
	var res []scored
	for _, acc := range accounts {
		if score := matchScore(acc, query); score > 0 {
			res = append(res, scored{acc, score})
		}
	}
	if len(res) == 0 {
		return domain.Account{}, false
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].score != res[j].score {
			return res[i].score > res[j].score
		}
		return res[i].acc.IsDefault && !res[j].acc.IsDefault
	})
	return res[0].acc, true
}

func matchScore(acc domain.Account, query string) int {
	name := strings.ToLower(acc.Name)
	score := 0
	if strings.Contains(name, query) {
		score += 4
	}
	if strings.Contains(query, name) {
		score += 3
	}
	if t, ok := domain.ParseAccountType(query); ok && t == acc.Type {
		score += 2
	}
	return score
}
