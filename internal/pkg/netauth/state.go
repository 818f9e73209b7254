package netauth

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Version of the token state that we marshal/unmarshal
type stateMarshal struct {
	AccessToken       string    `json:"access-token"`
	AccessTokenExpiry time.Time `json:"access-token-expiry"`
	RefreshToken      string    `json:"refresh-token"`
}

func hashOf(s string) string {
	sum := sha1.Sum([]byte(s))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// obfuscate tokens/secrets when stringified
func (s *Session) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fmt.Sprintf("ClientID [%s], clientSecret [%s], username [%s], accessToken [%s], accessTokenExpiry [%s], refreshToken [%s]",
		s.creds.ClientID, hashOf(s.creds.ClientSecret), s.creds.Username,
		hashOf(s.accessToken), s.expiry, hashOf(s.refreshToken))
}

// save writes the current token triple to the configured token file, if any
func (s *Session) save() error {
	if s.fileName == "" {
		return nil
	}

	s.mu.Lock()
	sm := stateMarshal{
		AccessToken:       s.accessToken,
		AccessTokenExpiry: s.expiry,
		RefreshToken:      s.refreshToken,
	}
	s.mu.Unlock()

	file, err := os.OpenFile(s.fileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrapf(err, "opening token file %s for write", s.fileName)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(sm); err != nil {
		return errors.Wrapf(err, "saving tokens to %s", s.fileName)
	}

	return nil
}

func (s *Session) load(fileName string) error {
	sm := stateMarshal{}

	file, err := os.Open(fileName)
	if err != nil {
		return errors.Wrapf(err, "opening token file %s for read", fileName)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&sm); err != nil {
		return errors.Wrapf(err, "loading tokens from %s", fileName)
	}

	s.mu.Lock()
	s.accessToken = sm.AccessToken
	s.expiry = sm.AccessTokenExpiry
	s.refreshToken = sm.RefreshToken
	s.mu.Unlock()

	return nil
}
