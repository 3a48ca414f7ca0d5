package auth

import (
	"errors"
	"fmt"

	"github.com/gluk-w/cohub/internal/crypto"
	"github.com/gluk-w/cohub/internal/database"
)

// DBPersister keeps the credential in the local state database with the
// token encrypted at rest.
type DBPersister struct{}

func (DBPersister) Load() (*Credential, error) {
	row, err := database.GetCredential()
	if errors.Is(err, database.ErrNoCredential) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	token, err := crypto.Decrypt(row.TokenEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypt token: %w", err)
	}
	return &Credential{
		Token:    token,
		UID:      row.UID,
		Username: row.Username,
		Server:   row.Server,
	}, nil
}

func (DBPersister) Save(c Credential) error {
	enc, err := crypto.Encrypt(c.Token)
	if err != nil {
		return fmt.Errorf("encrypt token: %w", err)
	}
	return database.SaveCredential(&database.Credential{
		UID:      c.UID,
		Username: c.Username,
		Server:   c.Server,
		TokenEnc: enc,
	})
}

func (DBPersister) Clear() error {
	return database.DeleteCredential()
}
