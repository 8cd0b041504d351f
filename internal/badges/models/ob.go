package models

import (
	"encoding/json"
	"maps"
	"time"
)

var credentialContext = []string{
	"https://www.w3.org/ns/credentials/v2",
	"https://purl.imsglobal.org/spec/ob/v3p0/context-3.0.3.json",
}

// AchievementCredential is the Open Badges 3.0 JSON-LD form of a credential.
type AchievementCredential struct {
	Context           []string          `json:"@context"`
	ID                string            `json:"id"`
	Type              []string          `json:"type"`
	Issuer            IssuerRef         `json:"issuer"`
	ValidFrom         string            `json:"validFrom"`
	ValidUntil        string            `json:"validUntil,omitempty"`
	AwardedDate       string            `json:"awardedDate,omitempty"`
	Name              string            `json:"name,omitempty"`
	CredentialSubject CredentialSubject `json:"credentialSubject"`
	CredentialStatus  *CredentialStatus `json:"credentialStatus,omitempty"`
}

type IssuerRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// CredentialSubject carries the recipient and achievement. Extra holds the
// client-supplied claim fields; the typed fields always win on collision.
type CredentialSubject struct {
	ID          string
	Type        []string
	Achievement AchievementRef
	Extra       map[string]any
}

func (s CredentialSubject) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+3)
	maps.Copy(out, s.Extra)
	out["id"] = s.ID
	out["type"] = s.Type
	out["achievement"] = s.Achievement
	return json.Marshal(out)
}

func (s *CredentialSubject) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["id"]; ok {
		if err := json.Unmarshal(v, &s.ID); err != nil {
			return err
		}
	}
	if v, ok := raw["type"]; ok {
		if err := json.Unmarshal(v, &s.Type); err != nil {
			return err
		}
	}
	if v, ok := raw["achievement"]; ok {
		if err := json.Unmarshal(v, &s.Achievement); err != nil {
			return err
		}
	}
	s.Extra = make(map[string]any)
	for k, v := range raw {
		if k == "id" || k == "type" || k == "achievement" {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		s.Extra[k] = val
	}
	return nil
}

type AchievementRef struct {
	ID          string    `json:"id"`
	Type        []string  `json:"type"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Criteria    *Criteria `json:"criteria,omitempty"`
	Image       string    `json:"image,omitempty"`
}

// ProfileDocument is the Open Badges 3.0 Profile served by /profile.
type ProfileDocument struct {
	Context     []string `json:"@context"`
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Address     string   `json:"address"`
	Name        string   `json:"name"`
	URL         string   `json:"url,omitempty"`
	Image       string   `json:"image,omitempty"`
	Email       string   `json:"email,omitempty"`
	Description string   `json:"description,omitempty"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

// AchievementDocument is the Open Badges 3.0 Achievement served after
// creation.
type AchievementDocument struct {
	Context     []string  `json:"@context"`
	ID          string    `json:"id"`
	Type        []string  `json:"type"`
	Address     string    `json:"address"`
	Creator     IssuerRef `json:"creator"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Criteria    Criteria  `json:"criteria"`
	Image       string    `json:"image,omitempty"`
	CreatedAt   string    `json:"createdAt"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// NewAchievementCredential renders a credential record as JSON-LD. Subject
// claims that are not JSON objects are dropped.
func NewAchievementCredential(r CredentialRecord) AchievementCredential {
	extra := map[string]any{}
	_ = json.Unmarshal(r.Subject, &extra)
	if extra == nil {
		extra = map[string]any{}
	}

	vc := AchievementCredential{
		Context: credentialContext,
		ID:      r.Address.DID(),
		Type:    []string{"VerifiableCredential", "AchievementCredential"},
		Issuer: IssuerRef{
			ID:   r.Issuer.DID(),
			Type: "Profile",
		},
		ValidFrom:   formatTime(r.ValidFrom),
		AwardedDate: formatTime(r.IssuedAt),
		Name:        r.AchievementName,
		CredentialSubject: CredentialSubject{
			ID:   r.Recipient.DID(),
			Type: []string{"AchievementSubject"},
			Achievement: AchievementRef{
				ID:   r.Achievement.DID(),
				Type: []string{"Achievement"},
				Name: r.AchievementName,
			},
			Extra: extra,
		},
	}
	if r.ValidUntil != nil {
		vc.ValidUntil = formatTime(*r.ValidUntil)
	}
	if r.Status != nil {
		vc.CredentialStatus = newCredentialStatus(vc.ID, *r.Status)
	}
	return vc
}

func NewProfileDocument(r IssuerRecord) ProfileDocument {
	return ProfileDocument{
		Context:     credentialContext,
		ID:          r.DID(),
		Type:        "Profile",
		Address:     r.Address.String(),
		Name:        r.Profile.Name,
		URL:         r.Profile.URL,
		Image:       r.Profile.Image,
		Email:       r.Profile.Email,
		Description: r.Profile.Description,
		CreatedAt:   formatTime(r.CreatedAt),
		UpdatedAt:   formatTime(r.UpdatedAt),
	}
}

func NewAchievementDocument(r AchievementRecord) AchievementDocument {
	return AchievementDocument{
		Context:     credentialContext,
		ID:          r.Address.DID(),
		Type:        []string{"Achievement"},
		Address:     r.Address.String(),
		Creator:     IssuerRef{ID: r.Issuer.DID(), Type: "Profile"},
		Name:        r.Name,
		Description: r.Description,
		Criteria:    r.Criteria,
		Image:       r.Image,
		CreatedAt:   formatTime(r.CreatedAt),
	}
}
