package models

// Credential represents one user's link to their portal account.
// The portal password is stored encrypted; decryption happens on demand
// inside the credential store, never here.
type Credential struct {
	ID                string `json:"id"`
	UserID            string `json:"user_id" badgerhold:"unique"`
	PortalUsername    string `json:"portal_username"`
	EncryptedPassword []byte `json:"encrypted_password"`
	Active            bool   `json:"active"`
	CreatedAt         int64  `json:"created_at"`
	UpdatedAt         int64  `json:"updated_at"`
}
