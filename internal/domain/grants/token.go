package grants

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// TokenLength es el largo en caracteres hex (32 bytes de entropía).
const TokenLength = 64

// DocumentTokenWindow define la vigencia de los tokens derivados por documento.
const DocumentTokenWindow = 15 * time.Minute

// NewToken genera un token opaco con crypto/rand. No codifica nada:
// parsearlo jamás revela metadata del grant.
func NewToken() (string, error) {
	buf := make([]byte, TokenLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// ValidToken valida solo la forma (largo + charset hex minúscula).
// Se usa para rechazar basura sintáctica antes de tocar el store.
func ValidToken(s string) bool {
	if len(s) != TokenLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// DocumentToken deriva un token de descarga por documento a partir del token
// del grant. Es HMAC (no invertible): un link de documento filtrado no
// permite reconstruir el token padre. Vigencia por ventanas de tiempo.
func DocumentToken(grantToken, documentID string, now time.Time) string {
	return documentTokenAt(grantToken, documentID, timeWindow(now))
}

// ValidDocumentToken acepta la ventana actual y la anterior, para que un link
// recién emitido no muera en el borde de la ventana.
func ValidDocumentToken(grantToken, documentID, candidate string, now time.Time) bool {
	if candidate == "" {
		return false
	}
	w := timeWindow(now)
	for _, win := range []int64{w, w - 1} {
		expected := documentTokenAt(grantToken, documentID, win)
		if hmac.Equal([]byte(candidate), []byte(expected)) {
			return true
		}
	}
	return false
}

func timeWindow(now time.Time) int64 {
	return now.Unix() / int64(DocumentTokenWindow.Seconds())
}

func documentTokenAt(grantToken, documentID string, window int64) string {
	// La key es un digest del token del grant, no el token en sí.
	key := sha256.Sum256([]byte(grantToken))
	mac := hmac.New(sha256.New, key[:])
	mac.Write([]byte(documentID))
	mac.Write([]byte("|"))
	mac.Write([]byte(strconv.FormatInt(window, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
