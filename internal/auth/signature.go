package auth

import (
	"crypto/ecdsa"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Request headers used by signature authentication.
const (
	HeaderAddress   = "X-Ledger-Address"
	HeaderTimestamp = "X-Ledger-Timestamp"
	HeaderSignature = "X-Ledger-Signature"
)

// SignatureAuthenticator verifies EIP-191 personal-sign signatures over
// timestamp + method + path + body. The recovered address is the caller
// identity, rendered in EIP-55 checksum form.
type SignatureAuthenticator struct {
	MaxSkew time.Duration
	Now     func() time.Time
}

// NewSignatureAuthenticator creates an authenticator that rejects
// signatures whose timestamp is more than maxSkew from now.
func NewSignatureAuthenticator(maxSkew time.Duration) *SignatureAuthenticator {
	return &SignatureAuthenticator{MaxSkew: maxSkew, Now: time.Now}
}

// Authenticate implements Authenticator.
func (a *SignatureAuthenticator) Authenticate(r *http.Request, body []byte) (string, error) {
	addrHex := strings.TrimSpace(r.Header.Get(HeaderAddress))
	tsStr := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	sigHex := strings.TrimSpace(r.Header.Get(HeaderSignature))
	if addrHex == "" || tsStr == "" || sigHex == "" {
		return "", fmt.Errorf("%w: missing signature headers", ErrUnauthenticated)
	}
	if !common.IsHexAddress(addrHex) {
		return "", fmt.Errorf("%w: malformed address", ErrUnauthenticated)
	}

	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: malformed timestamp", ErrUnauthenticated)
	}
	if a.MaxSkew > 0 {
		skew := a.Now().Sub(time.Unix(ts, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > a.MaxSkew {
			return "", fmt.Errorf("%w: timestamp outside allowed window", ErrUnauthenticated)
		}
	}

	sig, err := hexutil.Decode(sigHex)
	if err != nil || len(sig) != ethcrypto.SignatureLength {
		return "", fmt.Errorf("%w: malformed signature", ErrUnauthenticated)
	}
	// Wallets emit v as 27/28; recovery expects 0/1.
	if sig[ethcrypto.RecoveryIDOffset] >= 27 {
		sig[ethcrypto.RecoveryIDOffset] -= 27
	}

	digest := accounts.TextHash(SigningPayload(tsStr, r.Method, r.URL.Path, body))
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	recovered := ethcrypto.PubkeyToAddress(*pub)
	if recovered != common.HexToAddress(addrHex) {
		return "", fmt.Errorf("%w: signature does not match address", ErrUnauthenticated)
	}
	return recovered.Hex(), nil
}

// SigningPayload is the exact message a client signs.
func SigningPayload(timestamp, method, path string, body []byte) []byte {
	msg := make([]byte, 0, len(timestamp)+len(method)+len(path)+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, method...)
	msg = append(msg, path...)
	msg = append(msg, body...)
	return msg
}

// SignRequest sets the signature headers on r for the given key. Used by
// clients and tests.
func SignRequest(r *http.Request, key *ecdsa.PrivateKey, body []byte, at time.Time) error {
	ts := strconv.FormatInt(at.Unix(), 10)
	digest := accounts.TextHash(SigningPayload(ts, r.Method, r.URL.Path, body))
	sig, err := ethcrypto.Sign(digest, key)
	if err != nil {
		return fmt.Errorf("auth: sign request: %w", err)
	}
	sig[ethcrypto.RecoveryIDOffset] += 27

	r.Header.Set(HeaderAddress, ethcrypto.PubkeyToAddress(key.PublicKey).Hex())
	r.Header.Set(HeaderTimestamp, ts)
	r.Header.Set(HeaderSignature, hexutil.Encode(sig))
	return nil
}
