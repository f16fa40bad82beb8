// Package signature implements the ticket signing protocol: per-concert
// secp256k1 key pairs, ECDSA signatures over a canonical ticket message, and
// the QR payload exchanged with scanning clients.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

const (
	privateKeyPEMType = "EC PRIVATE KEY"
	publicKeyPEMType  = "EC PUBLIC KEY"
)

// KeyPair holds PEM-encoded signing material for a single concert.
type KeyPair struct {
	PublicKey  string
	PrivateKey string
}

// GenerateKeyPair produces a fresh secp256k1 key pair. Called exactly once per
// concert, at creation time.
func GenerateKeyPair() (KeyPair, error) {
	const op = "signature.GenerateKeyPair"

	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return KeyPair{}, fmt.Errorf("%s: %w", op, err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  privateKeyPEMType,
		Bytes: priv.Serialize(),
	})
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  publicKeyPEMType,
		Bytes: priv.PubKey().SerializeCompressed(),
	})

	return KeyPair{
		PublicKey:  string(pubPEM),
		PrivateKey: string(privPEM),
	}, nil
}

// CanonicalMessage is the exact string that gets signed at issuance and
// rebuilt at verification. Field order and formatting are a wire contract;
// changing either invalidates every ticket already issued.
func CanonicalMessage(ticketID, concertID, userID string, timestampMillis int64) string {
	return fmt.Sprintf("%s:%s:%s:%d", ticketID, concertID, userID, timestampMillis)
}

// Sign signs the SHA-256 digest of message with a PEM-encoded private key and
// returns the DER signature as a hex string.
func Sign(message, privateKeyPEM string) (string, error) {
	const op = "signature.Sign"

	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil || block.Type != privateKeyPEMType {
		return "", fmt.Errorf("%s: malformed private key", op)
	}
	if len(block.Bytes) != secp256k1.PrivKeyBytesLen {
		return "", fmt.Errorf("%s: bad private key length %d", op, len(block.Bytes))
	}

	priv := secp256k1.PrivKeyFromBytes(block.Bytes)
	digest := sha256.Sum256([]byte(message))
	sig := ecdsa.Sign(priv, digest[:])

	return hex.EncodeToString(sig.Serialize()), nil
}

// Verify checks signatureHex against message and a PEM-encoded public key.
// Malformed signatures or keys never error; they verify as false.
func Verify(message, signatureHex, publicKeyPEM string) bool {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil || block.Type != publicKeyPEMType {
		return false
	}

	pub, err := secp256k1.ParsePubKey(block.Bytes)
	if err != nil {
		return false
	}

	raw, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}

	sig, err := ecdsa.ParseDERSignature(raw)
	if err != nil {
		return false
	}

	digest := sha256.Sum256([]byte(message))

	return sig.Verify(digest[:], pub)
}

// QRPayload is the JSON blob embedded in a ticket's scannable code. The three
// field names are the wire contract with scanner clients.
type QRPayload struct {
	TicketID  string `json:"ticketId"`
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
}

// BuildQRPayload renders the QR payload for a signed ticket.
func BuildQRPayload(ticketID, signatureHex string, timestampMillis int64) (string, error) {
	const op = "signature.BuildQRPayload"

	b, err := json.Marshal(QRPayload{
		TicketID:  ticketID,
		Signature: signatureHex,
		Timestamp: timestampMillis,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(b), nil
}

// ParseQRPayload is a tolerant parse of scanned data. It returns nil for
// anything that is not a JSON object carrying all three fields; callers treat
// nil as "unrecognized code", never as a failure to propagate.
func ParseQRPayload(raw string) *QRPayload {
	var p QRPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil
	}

	if p.TicketID == "" || p.Signature == "" || p.Timestamp == 0 {
		return nil
	}

	return &p
}
