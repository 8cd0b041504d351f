package handler

import (
	"net/http"

	"openbadges/internal/authz"
	"openbadges/pkg/platform/httputil"
)

// DiscoveryConfig is the static metadata published by the discovery
// endpoint.
type DiscoveryConfig struct {
	Title            string
	Version          string
	Name             string
	ServerURL        string
	TermsOfService   string
	PrivacyPolicyURL string
	ImageURL         string
	RegistrationURL  string
	AuthorizationURL string
	TokenURL         string
	RefreshURL       string
}

// ServiceDescription is the Open Badges 3.0 service description document.
type ServiceDescription struct {
	OpenAPI    string                `json:"openapi"`
	Info       ServiceInfo           `json:"info"`
	Servers    []ServiceServer       `json:"servers,omitempty"`
	Components ServiceComponents     `json:"components"`
	Security   []map[string][]string `json:"security"`
}

type ServiceInfo struct {
	Title            string `json:"title"`
	Version          string `json:"version"`
	TermsOfService   string `json:"termsOfService,omitempty"`
	Name             string `json:"x-imssf-name,omitempty"`
	PrivacyPolicyURL string `json:"x-imssf-privacyPolicyUrl,omitempty"`
	Image            string `json:"x-imssf-image,omitempty"`
}

type ServiceServer struct {
	URL string `json:"url"`
}

type ServiceComponents struct {
	SecuritySchemes map[string]SecurityScheme `json:"securitySchemes"`
}

type SecurityScheme struct {
	Type            string     `json:"type"`
	Description     string     `json:"description"`
	RegistrationURL string     `json:"x-imssf-registrationUrl,omitempty"`
	Flows           OAuthFlows `json:"flows"`
}

type OAuthFlows struct {
	AuthorizationCode AuthorizationCodeFlow `json:"authorizationCode"`
}

type AuthorizationCodeFlow struct {
	AuthorizationURL string            `json:"authorizationUrl"`
	TokenURL         string            `json:"tokenUrl"`
	RefreshURL       string            `json:"refreshUrl,omitempty"`
	Scopes           map[string]string `json:"scopes"`
}

const securitySchemeName = "OAuth2ACG"

var scopeDescriptions = map[authz.Scope]string{
	authz.ScopeCredentialReadonly: "Permission to read AchievementCredentials for the authenticated entity.",
	authz.ScopeCredentialUpsert:   "Permission to create or update AchievementCredentials for the authenticated entity.",
	authz.ScopeProfileReadonly:    "Permission to read the profile for the authenticated entity.",
	authz.ScopeProfileUpdate:      "Permission to update the profile for the authenticated entity.",
}

// NewServiceDescription builds the discovery document from cfg.
func NewServiceDescription(cfg DiscoveryConfig) ServiceDescription {
	scopes := make(map[string]string, len(scopeDescriptions))
	allScopes := make([]string, 0, len(scopeDescriptions))
	for _, scope := range authz.AllScopes() {
		scopes[scope.String()] = scopeDescriptions[scope]
		allScopes = append(allScopes, scope.String())
	}

	doc := ServiceDescription{
		OpenAPI: "3.0.1",
		Info: ServiceInfo{
			Title:            cfg.Title,
			Version:          cfg.Version,
			TermsOfService:   cfg.TermsOfService,
			Name:             cfg.Name,
			PrivacyPolicyURL: cfg.PrivacyPolicyURL,
			Image:            cfg.ImageURL,
		},
		Components: ServiceComponents{
			SecuritySchemes: map[string]SecurityScheme{
				securitySchemeName: {
					Type:            "oauth2",
					Description:     "OAuth 2.0 Authorization Code Grant authorization",
					RegistrationURL: cfg.RegistrationURL,
					Flows: OAuthFlows{AuthorizationCode: AuthorizationCodeFlow{
						AuthorizationURL: cfg.AuthorizationURL,
						TokenURL:         cfg.TokenURL,
						RefreshURL:       cfg.RefreshURL,
						Scopes:           scopes,
					}},
				},
			},
		},
		Security: []map[string][]string{{securitySchemeName: allScopes}},
	}
	if cfg.ServerURL != "" {
		doc.Servers = []ServiceServer{{URL: cfg.ServerURL + BasePath}}
	}
	return doc
}

// HandleDiscovery serves GET /discovery. It needs no authentication.
func (h *Handler) HandleDiscovery(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, NewServiceDescription(h.discovery))
}
