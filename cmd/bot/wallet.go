package main

import (
	"crypto/ecdsa"
	"strings"

	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
	"github.com/pkg/errors"

	"github.com/betbot/copytrader/clob/signing"
	"github.com/betbot/copytrader/pkg/config"
)

// defaultDerivationPath is the first account of the standard Ethereum tree.
const defaultDerivationPath = "m/44'/60'/0'/0/0"

// resolveSigner returns the trading key: an explicit hex key wins, otherwise
// the first account derived from the mnemonic.
func resolveSigner(w config.WalletConfig) (*ecdsa.PrivateKey, error) {
	if key := strings.TrimSpace(w.PrivateKey); key != "" {
		pk, err := signing.PrivateKeyFromHex(key)
		if err != nil {
			return nil, errors.Wrap(err, "parse private key")
		}
		return pk, nil
	}

	mnemonic := strings.TrimSpace(w.Mnemonic)
	if mnemonic == "" {
		return nil, errors.New("private key or mnemonic required")
	}
	wallet, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, errors.Wrap(err, "invalid mnemonic")
	}
	path, err := hdwallet.ParseDerivationPath(defaultDerivationPath)
	if err != nil {
		return nil, errors.Wrap(err, "parse derivation path")
	}
	account, err := wallet.Derive(path, false)
	if err != nil {
		return nil, errors.Wrap(err, "derive account")
	}
	keyHex, err := wallet.PrivateKeyHex(account)
	if err != nil {
		return nil, errors.Wrap(err, "export derived key")
	}
	pk, err := signing.PrivateKeyFromHex(keyHex)
	if err != nil {
		return nil, errors.Wrap(err, "parse derived key")
	}
	return pk, nil
}
