package roster

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// placeholderSecretBytes is the entropy of the unusable password given to synced users
const placeholderSecretBytes = 32

// NormalizeEmail trims and lower-cases an email so it can be used as a join key
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DisplayName derives a display name from the local part of an email
func DisplayName(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found || local == "" {
		return email
	}
	return local
}

// CheckPassword reports whether password matches a bcrypt hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Credentials derives the login credentials of accounts created by the sync engines
type Credentials struct {
	// TeamEmailDomain is the domain of the placeholder team login email
	TeamEmailDomain string
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost
	Cost int
}

// TeamLoginEmail is the placeholder login email of a synced team
func (c Credentials) TeamLoginEmail(inviteCode string) string {
	return strings.ToLower(strings.TrimSpace(inviteCode)) + "@" + c.TeamEmailDomain
}

// HashPassword returns a bcrypt hash of password
func (c Credentials) HashPassword(password string) (string, error) {
	cost := c.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// NewTeam builds the creation request for a synced team. The team credential is derived
// from the invite code since real users authenticate through the registration service.
func (c Credentials) NewTeam(name, inviteCode string) (NewTeam, error) {
	hash, err := c.HashPassword(inviteCode)
	if err != nil {
		return NewTeam{}, err
	}
	return NewTeam{
		Name:         name,
		Email:        c.TeamLoginEmail(inviteCode),
		PasswordHash: hash,
	}, nil
}

// NewUser builds the creation request for a user seen for the first time.
// The password is a random secret nobody knows.
func (c Credentials) NewUser(email string, role Role) (NewUser, error) {
	secret := make([]byte, placeholderSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return NewUser{}, fmt.Errorf("failed to generate placeholder password: %w", err)
	}
	hash, err := c.HashPassword(hex.EncodeToString(secret))
	if err != nil {
		return NewUser{}, err
	}
	email = NormalizeEmail(email)
	return NewUser{
		Email:        email,
		Name:         DisplayName(email),
		PasswordHash: hash,
		Role:         role,
		Verified:     true,
	}, nil
}
