package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/crypto/scrypt"
)

// Credentials holds the decrypted passphrases needed to open and unlock a
// wallet.
type Credentials struct {
	PubPass  []byte
	PrivPass []byte
}

// LoadCredentials reads the wallet's encrypted .env file and decrypts the
// passphrases with the given password.
func LoadCredentials(walletName, password string) (*Credentials, error) {
	envFile := filepath.Join(viper.GetString("wallet_dir"), walletName+".env")
	if err := godotenv.Load(envFile); err != nil {
		return nil, fmt.Errorf("error loading wallet file: %v", err)
	}

	encryptedPubPass := os.Getenv("ENCRYPTED_PUBLIC_PASSPHRASE")
	encryptedPrivPass := os.Getenv("ENCRYPTED_PRIVATE_PASSPHRASE")
	if encryptedPubPass == "" || encryptedPrivPass == "" {
		return nil, fmt.Errorf("encrypted wallet data not found in %s", envFile)
	}

	pubPass, err := decrypt(encryptedPubPass, password)
	if err != nil {
		return nil, fmt.Errorf("error decrypting public passphrase: %v", err)
	}

	privPass, err := decrypt(encryptedPrivPass, password)
	if err != nil {
		return nil, fmt.Errorf("error decrypting private passphrase: %v", err)
	}

	return &Credentials{
		PubPass:  []byte(pubPass),
		PrivPass: []byte(privPass),
	}, nil
}

// ListWallets returns the names of the wallet .env files in the configured
// wallet directory.
func ListWallets() ([]string, error) {
	files, err := os.ReadDir(viper.GetString("wallet_dir"))
	if err != nil {
		return nil, fmt.Errorf("error reading wallet directory: %v", err)
	}

	var wallets []string
	for _, file := range files {
		if filepath.Ext(file.Name()) == ".env" {
			wallets = append(wallets, strings.TrimSuffix(file.Name(), ".env"))
		}
	}
	return wallets, nil
}

func decrypt(ciphertext string, password string) (string, error) {
	parts := strings.Split(ciphertext, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid ciphertext format")
	}

	salt, _ := base64.StdEncoding.DecodeString(parts[0])
	iv, _ := base64.StdEncoding.DecodeString(parts[1])
	encryptedData, _ := base64.StdEncoding.DecodeString(parts[2])

	key, err := scrypt.Key([]byte(password), salt, 1<<15, 8, 1, 32)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	plaintext, err := aesgcm.Open(nil, iv, encryptedData, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}
