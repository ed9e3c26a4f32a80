package vault

import (
	"encoding/json"
	"fmt"

	"github.com/petalvault/petalvault/internal/keys"
)

func marshalWrapped(w *keys.WrappedMnemonic) ([]byte, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal wrapped mnemonic: %w", err)
	}
	return data, nil
}

func (v *Vault) wrappedMnemonic() (*keys.WrappedMnemonic, error) {
	data, err := v.db.GetWrappedMnemonic()
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var wrapped keys.WrappedMnemonic
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wrapped mnemonic: %w", err)
	}
	return &wrapped, nil
}
