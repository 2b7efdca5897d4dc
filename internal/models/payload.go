package models

import "encoding/json"

// PayloadType classifies the secret stored in an entry blob.
type PayloadType string

const (
	PayloadTypeNote       PayloadType = "note"
	PayloadTypeLogin      PayloadType = "login"
	PayloadTypeCreditCard PayloadType = "credit_card"
)

// Envelope is the plaintext form of an entry blob before encryption: a typed
// payload with a title and free-form metadata pairs.
type Envelope struct {
	Type     PayloadType     `json:"type"`
	Title    string          `json:"title"`
	Metadata []Metadata      `json:"metadata,omitempty"`
	Details  json.RawMessage `json:"details"`
}

// Metadata is a simple key/value pair attached to an envelope.
type Metadata struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Wrap serializes v into an Envelope of the given type.
func Wrap[T any](t PayloadType, title string, md []Metadata, v T) (Envelope, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: t, Title: title, Metadata: md, Details: b}, nil
}

// Unwrap decodes the typed payload. Unknown types decode into a generic map.
func (e Envelope) Unwrap() (any, error) {
	switch e.Type {
	case PayloadTypeLogin:
		var v Login
		return v, json.Unmarshal(e.Details, &v)
	case PayloadTypeNote:
		var v Note
		return v, json.Unmarshal(e.Details, &v)
	case PayloadTypeCreditCard:
		var v CreditCard
		return v, json.Unmarshal(e.Details, &v)
	default:
		var m map[string]any
		if err := json.Unmarshal(e.Details, &m); err != nil {
			return nil, err
		}
		return m, nil
	}
}

// Login stores credentials.
type Login struct {
	Username string `json:"username"`
	Password string `json:"password"`
	URL      string `json:"url"`
}

// Note stores free-form text.
type Note struct {
	Text string `json:"text"`
}

// CreditCard stores payment card details.
type CreditCard struct {
	Number     string `json:"number"`
	Expiration string `json:"expiration"`
	CVV        string `json:"cvv"`
	Holder     string `json:"holder"`
}
