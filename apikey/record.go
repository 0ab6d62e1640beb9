package apikey

import (
	"maps"
	"time"
)

// Record is the stored form of an API key. Only the keyed hash of the raw
// key is kept.
type Record struct {
	KeyID             string                 `json:"key_id"`
	HashedKey         string                 `json:"hashed_key"`
	ClientName        string                 `json:"client_name"`
	Name              string                 `json:"name"`
	Permissions       []Permission           `json:"permissions"`
	RateLimitOverride *int                   `json:"rate_limit_override,omitempty"`
	IsActive          bool                   `json:"is_active"`
	CreatedAt         time.Time              `json:"created_at"`
	LastUsedAt        *time.Time             `json:"last_used_at,omitempty"`
	ExpiresAt         *time.Time             `json:"expires_at,omitempty"`
	UsageCount        int64                  `json:"usage_count"`
	IPWhitelist       []string               `json:"ip_whitelist,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

func (r *Record) AllowsIP(ip string) bool {
	if ip == "" || len(r.IPWhitelist) == 0 {
		return true
	}
	for _, allowed := range r.IPWhitelist {
		if allowed == ip {
			return true
		}
	}
	return false
}

// Usable reports whether the key may authenticate a request from ip at now.
func (r *Record) Usable(now time.Time, ip string) bool {
	return r.IsActive && !r.Expired(now) && r.AllowsIP(ip)
}

func (r *Record) view() KeyView {
	return KeyView{
		KeyID:             r.KeyID,
		ClientName:        r.ClientName,
		Name:              r.Name,
		Permissions:       append([]Permission(nil), r.Permissions...),
		RateLimitOverride: clonePtr(r.RateLimitOverride),
		IsActive:          r.IsActive,
		CreatedAt:         r.CreatedAt,
		LastUsedAt:        clonePtr(r.LastUsedAt),
		ExpiresAt:         clonePtr(r.ExpiresAt),
		UsageCount:        r.UsageCount,
		IPWhitelist:       append([]string(nil), r.IPWhitelist...),
		Metadata:          maps.Clone(r.Metadata),
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// KeyView is the metadata of a key as exposed to admins.
type KeyView struct {
	KeyID             string                 `json:"key_id"`
	ClientName        string                 `json:"client_name"`
	Name              string                 `json:"name,omitempty"`
	Permissions       []Permission           `json:"permissions"`
	RateLimitOverride *int                   `json:"rate_limit_override,omitempty"`
	IsActive          bool                   `json:"is_active"`
	CreatedAt         time.Time              `json:"created_at"`
	LastUsedAt        *time.Time             `json:"last_used_at,omitempty"`
	ExpiresAt         *time.Time             `json:"expires_at,omitempty"`
	UsageCount        int64                  `json:"usage_count"`
	IPWhitelist       []string               `json:"ip_whitelist,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// ClientInfo is what a successful validation hands to the request.
type ClientInfo struct {
	KeyID       string                 `json:"key_id"`
	ClientName  string                 `json:"client_name"`
	Permissions []Permission           `json:"permissions"`
	RateLimit   int                    `json:"rate_limit,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

func (c *ClientInfo) Has(p Permission) bool {
	for _, granted := range c.Permissions {
		if granted == p {
			return true
		}
	}
	return false
}

type GenerateRequest struct {
	ClientName        string                 `json:"client_name" validate:"required,max=128"`
	Name              string                 `json:"name" validate:"omitempty,max=128"`
	Permissions       []string               `json:"permissions" validate:"required,min=1,dive,oneof=read write admin statistics"`
	ExpiresInDays     int                    `json:"expires_in_days" validate:"min=0,max=3650"`
	RateLimitOverride *int                   `json:"rate_limit_override" validate:"omitempty,min=1"`
	IPWhitelist       []string               `json:"ip_whitelist" validate:"omitempty,dive,ip"`
	Metadata          map[string]interface{} `json:"metadata"`
}
