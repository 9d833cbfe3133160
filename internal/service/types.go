package service

import (
	"github.com/cruxstack/email-verifier-go/internal/orchestrator"
)

// CacheOptions overrides the configured cache defaults for one batch.
type CacheOptions struct {
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled"`
	TTLDays int   `json:"ttlDays,omitempty" yaml:"ttlDays" validate:"gte=0"`
}

// GreylistOptions overrides the configured greylist retry defaults.
type GreylistOptions struct {
	Enabled           *bool `json:"enabled,omitempty" yaml:"enabled"`
	RetryDelaySeconds *int  `json:"retryDelaySeconds,omitempty" yaml:"retryDelaySeconds" validate:"omitempty,gte=0,lte=3600"`
	MaxRetries        *int  `json:"maxRetries,omitempty" yaml:"maxRetries" validate:"omitempty,gte=0,lte=10"`
}

type Request struct {
	Emails         []string         `json:"emails" yaml:"emails" validate:"required,min=1,max=1000"`
	APIKey         string           `json:"apiKey,omitempty" yaml:"apiKey"`
	ContinueOnFail bool             `json:"continueOnFail,omitempty" yaml:"continueOnFail"`
	AddressCache   *CacheOptions    `json:"addressCache,omitempty" yaml:"addressCache"`
	DomainCache    *CacheOptions    `json:"domainCache,omitempty" yaml:"domainCache"`
	Greylist       *GreylistOptions `json:"greylist,omitempty" yaml:"greylist"`
}

type Response struct {
	BatchID string                `json:"batchId"`
	Results []orchestrator.Output `json:"results"`
}
