package cookie

import (
	"errors"
	"net/http"
	"time"
)

// ErrNoCookie is returned by Jar.Read when the request carries no session cookie.
var ErrNoCookie = http.ErrNoCookie

// Settings are the deployment-level cookie attributes.
type Settings struct {
	Name   string
	Secure bool
	// MaxAge doubles as the refresh-token lifetime.
	MaxAge time.Duration
}

// Jar reads and writes the encrypted session cookie on HTTP requests and responses.
type Jar struct {
	codec    *Codec
	settings Settings
}

func NewJar(codec *Codec, settings Settings) *Jar {
	if settings.Name == "" {
		settings.Name = "yoto_session"
	}
	if settings.MaxAge <= 0 {
		settings.MaxAge = 30 * 24 * time.Hour
	}
	return &Jar{codec: codec, settings: settings}
}

func (j *Jar) Name() string {
	return j.settings.Name
}

// MaxAge is the cookie lifetime, also used as the refresh-token lifetime.
func (j *Jar) MaxAge() time.Duration {
	return j.settings.MaxAge
}

// Read returns ErrNoCookie when absent and ErrCorruptCookie when it cannot be opened.
func (j *Jar) Read(r *http.Request) (Payload, error) {
	c, err := r.Cookie(j.settings.Name)
	if err != nil {
		return Payload{}, ErrNoCookie
	}
	if c.Value == "" {
		return Payload{}, ErrNoCookie
	}
	return j.codec.Decode(c.Value)
}

func (j *Jar) Write(w http.ResponseWriter, p Payload) error {
	value, err := j.codec.Encode(p)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     j.settings.Name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   j.settings.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(j.settings.MaxAge / time.Second),
	})
	return nil
}

// Clear expires the cookie in the browser.
func (j *Jar) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     j.settings.Name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   j.settings.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// IsMissing reports whether err means "no cookie" rather than "bad cookie".
func IsMissing(err error) bool {
	return errors.Is(err, ErrNoCookie)
}
