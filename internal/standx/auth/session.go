package auth

// Session is an authenticated venue identity: a bearer token plus the key
// that signs order entry.
type Session struct {
	Token   string
	Signer  *RequestSigner
	Address string
}

func (s *Session) Valid() bool {
	return s != nil && s.Token != "" && s.Signer != nil
}
