package models

// CredentialState is the read-modify-write view over the three credential
// documents. Callers mutate it in place inside a storage update.
type CredentialState struct {
	Credentials   map[string]*StoredCredential
	ExpiredTokens []*ExpiredToken
	History       []*HistoryEntry
}

// PrependExpired adds a snapshot at the front and truncates to the cap
func (s *CredentialState) PrependExpired(token *ExpiredToken) {
	s.ExpiredTokens = append([]*ExpiredToken{token}, s.ExpiredTokens...)
	if len(s.ExpiredTokens) > MaxExpiredTokens {
		s.ExpiredTokens = s.ExpiredTokens[:MaxExpiredTokens]
	}
}

// PrependHistory adds an entry at the front and truncates to the cap
func (s *CredentialState) PrependHistory(entry *HistoryEntry) {
	s.History = append([]*HistoryEntry{entry}, s.History...)
	if len(s.History) > MaxHistoryEntries {
		s.History = s.History[:MaxHistoryEntries]
	}
}
