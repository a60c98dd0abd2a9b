package login

import (
	"context"

	"github.com/originline/loginauth/internal/model"
	"github.com/originline/loginauth/internal/store"
)

// Store is the subset of store.Store the char-link handlers need
// beyond what auth.Engine already wraps.
type Store interface {
	LookupByID(ctx context.Context, id int32) (*model.Account, error)
	SetState(ctx context.Context, id int32, state int) error
	SetBanUntil(ctx context.Context, id int32, ts int64) error
	SetSex(ctx context.Context, id int32, sex model.Sex) error
	SetEmail(ctx context.Context, id int32, currentEmail, newEmail string) (bool, error)
	ReplaceVariables(ctx context.Context, accountID int32, vars map[string]string) error
	ReadVariables(ctx context.Context, accountID int32) (map[string]string, error)
	SaveServerStatus(ctx context.Context, index int16, name string, users int) error
	LoadServerStatus(ctx context.Context) (map[int16]int, error)
	LoadGMList(ctx context.Context) ([]store.GMEntry, error)
}
