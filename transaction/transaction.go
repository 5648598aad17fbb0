package transaction

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"github.com/securerx/go-securerx/utils"
	"github.com/ztrue/tracerr"
)

var (
	// ErrorMalformedPublicKey is returned when a public key does not have exactly 32 bytes
	ErrorMalformedPublicKey = utils.NewRxError("TRANSACTION_MALFORMED_PUBLIC_KEY", "public key must be 32 bytes")
	// ErrorMalformedSignature is returned when a signature does not have exactly 64 bytes
	ErrorMalformedSignature = utils.NewRxError("TRANSACTION_MALFORMED_SIGNATURE", "signature must be 64 bytes")
	// ErrorInvalidPrivateKey is returned when a signing key is not an ed25519 private key
	ErrorInvalidPrivateKey = utils.NewRxError("TRANSACTION_INVALID_PRIVATE_KEY", "private key must be 64 bytes")
)

// PublicKey is an ed25519 public key.
// On the wire, it is a JSON array of 32 byte values.
type PublicKey [ed25519.PublicKeySize]byte

// Signature is an ed25519 signature.
// On the wire, it is a JSON array of 64 byte values.
type Signature [ed25519.SignatureSize]byte

// Transaction is a signed prescription record. The signature covers Payload only:
// IssuerId and SubjectId are not authenticated.
type Transaction struct {
	IssuerId  string    `json:"issuer_id"`
	SubjectId string    `json:"subject_id"`
	Payload   string    `json:"payload"`
	Signature Signature `json:"signature"`
	PublicKey PublicKey `json:"public_key"`
}

func DecodePublicKey(b []byte) (PublicKey, error) {
	var publicKey PublicKey
	if len(b) != len(publicKey) {
		return publicKey, tracerr.Wrap(ErrorMalformedPublicKey.AddDetails(fmt.Sprintf("got %d bytes", len(b))))
	}
	copy(publicKey[:], b)
	return publicKey, nil
}

func DecodeSignature(b []byte) (Signature, error) {
	var signature Signature
	if len(b) != len(signature) {
		return signature, tracerr.Wrap(ErrorMalformedSignature.AddDetails(fmt.Sprintf("got %d bytes", len(b))))
	}
	copy(signature[:], b)
	return signature, nil
}

func (k PublicKey) Hex() string {
	return hex.EncodeToString(k[:])
}

func (s Signature) Hex() string {
	return hex.EncodeToString(s[:])
}

// decodeByteArray reads a JSON array of integers in 0..255. It returns false on anything else.
func decodeByteArray(data []byte) ([]byte, bool) {
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, false
	}
	b := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, false
		}
		b[i] = byte(v)
	}
	return b, true
}

func (k *PublicKey) UnmarshalJSON(data []byte) error {
	b, ok := decodeByteArray(data)
	if !ok {
		return tracerr.Wrap(ErrorMalformedPublicKey.AddDetails("not an array of bytes"))
	}
	publicKey, err := DecodePublicKey(b)
	if err != nil {
		return tracerr.Wrap(err)
	}
	*k = publicKey
	return nil
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	b, ok := decodeByteArray(data)
	if !ok {
		return tracerr.Wrap(ErrorMalformedSignature.AddDetails("not an array of bytes"))
	}
	signature, err := DecodeSignature(b)
	if err != nil {
		return tracerr.Wrap(err)
	}
	*s = signature
	return nil
}

// Issue generates a fresh keypair and returns a transaction signed with it, along with the private key.
// Keys are not persisted: every issuance is independently keyed.
func Issue(issuerId string, subjectId string, payload string) (*Transaction, ed25519.PrivateKey, error) {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil { // cannot cover
		return nil, nil, tracerr.Wrap(err)
	}
	tx, err := IssueWithKey(issuerId, subjectId, payload, privateKey)
	if err != nil {
		return nil, nil, tracerr.Wrap(err)
	}
	return tx, privateKey, nil
}

// IssueWithKey signs payload with the given private key.
func IssueWithKey(issuerId string, subjectId string, payload string, privateKey ed25519.PrivateKey) (*Transaction, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, tracerr.Wrap(ErrorInvalidPrivateKey.AddDetails(fmt.Sprintf("got %d bytes", len(privateKey))))
	}
	tx := Transaction{
		IssuerId:  issuerId,
		SubjectId: subjectId,
		Payload:   payload,
	}
	copy(tx.Signature[:], ed25519.Sign(privateKey, []byte(payload)))
	copy(tx.PublicKey[:], privateKey.Public().(ed25519.PublicKey))
	return &tx, nil
}

// VerifySignature checks signature over message under publicKey.
// Wrong lengths are rejected before any cryptographic work. It never panics.
func VerifySignature(message []byte, publicKey []byte, signature []byte) bool {
	decodedPublicKey, err := DecodePublicKey(publicKey)
	if err != nil {
		return false
	}
	decodedSignature, err := DecodeSignature(signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(decodedPublicKey[:], message, decodedSignature[:])
}

// Verify returns true only if the signature is valid for the payload under the embedded public key.
func (tx *Transaction) Verify() bool {
	return VerifySignature([]byte(tx.Payload), tx.PublicKey[:], tx.Signature[:])
}
