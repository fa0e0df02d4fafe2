// Package authz classifies API keys into roles for the rate-limiting
// middleware. Admin keys bypass metering entirely; user keys are metered;
// anything else is unknown and passes through unmetered.
package authz

import (
	"context"

	"adgate/internal/models"
)

// Role is the metering class assigned to a caller identity.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleUser    Role = "user"
	RoleUnknown Role = "unknown"
)

// Classifier maps an API key to a Role. Implementations must be safe for
// concurrent use.
type Classifier interface {
	Classify(ctx context.Context, key string) Role
}

// StaticClassifier resolves keys against a fixed table built from
// configuration at startup. Lookups are by SHA-256 hash so raw key material
// is not retained in memory.
type StaticClassifier struct {
	roles map[string]Role
}

// NewStaticClassifier builds a classifier from configured API keys. Disabled
// keys and keys with unrecognized roles classify as unknown.
func NewStaticClassifier(keys []models.APIKey) *StaticClassifier {
	roles := make(map[string]Role, len(keys))
	for _, k := range keys {
		if !k.Enabled {
			continue
		}
		switch Role(k.Role) {
		case RoleAdmin:
			roles[models.HashAPIKey(k.Key)] = RoleAdmin
		case RoleUser:
			roles[models.HashAPIKey(k.Key)] = RoleUser
		}
	}
	return &StaticClassifier{roles: roles}
}

func (c *StaticClassifier) Classify(_ context.Context, key string) Role {
	if key == "" {
		return RoleUnknown
	}
	if role, ok := c.roles[models.HashAPIKey(key)]; ok {
		return role
	}
	return RoleUnknown
}
