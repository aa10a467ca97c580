package confirm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"finbot/internal/domain"
)

// MaxCallbackData is Telegram's limit on callback_data.
const MaxCallbackData = 64

type Action string

const (
	ConfirmExpense Action = "confirm_expense"
	CancelExpense  Action = "cancel_expense"
	ConfirmIncome  Action = "confirm_income"
	CancelIncome   Action = "cancel_income"
)

var ErrBadCallback = errors.New("invalid callback data")

// IsConfirm reports whether a commits the draft.
func (a Action) IsConfirm() bool {
	return a == ConfirmExpense || a == ConfirmIncome
}

// TxType is the transaction type the action applies to.
func (a Action) TxType() domain.TxType {
	if a == ConfirmIncome || a == CancelIncome {
		return domain.Income
	}
	return domain.Expense
}

func (a Action) valid() bool {
	switch a {
	case ConfirmExpense, CancelExpense, ConfirmIncome, CancelIncome:
		return true
	}
	return false
}

// ActionsFor returns the confirm and cancel actions for t.
func ActionsFor(t domain.TxType) (confirm, cancel Action) {
	if t == domain.Income {
		return ConfirmIncome, CancelIncome
	}
	return ConfirmExpense, CancelExpense
}

// Callback is the payload behind an inline button: action:userId:draftId.
// UserID is the Telegram user the buttons were sent to.
type Callback struct {
	Action  Action
	UserID  int64
	DraftID string
}

func (c Callback) String() string {
	return fmt.Sprintf("%s:%d:%s", c.Action, c.UserID, c.DraftID)
}

// ParseCallback decodes button data produced by Callback.String.
func ParseCallback(data string) (Callback, error) {
	if len(data) > MaxCallbackData {
		return Callback{}, fmt.Errorf("%w: too long", ErrBadCallback)
	}
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return Callback{}, fmt.Errorf("%w: %q", ErrBadCallback, data)
	}
	action := Action(parts[0])
	if !action.valid() {
		return Callback{}, fmt.Errorf("%w: unknown action %q", ErrBadCallback, parts[0])
	}
	userID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Callback{}, fmt.Errorf("%w: user id: %v", ErrBadCallback, err)
	}
	if parts[2] == "" {
		return Callback{}, fmt.Errorf("%w: empty draft id", ErrBadCallback)
	}
	return Callback{Action: action, UserID: userID, DraftID: parts[2]}, nil
}
