package iam

// GenerateOption customizes Generate and Attempt.
type GenerateOption func(*generateOptions)

type generateOptions struct {
	tokenType   string
	environment string
	name        string
	metadata    map[string]string
}

// WithTokenType overrides the token type prefix (default "api").
func WithTokenType(tokenType string) GenerateOption {
	return func(o *generateOptions) {
		o.tokenType = tokenType
	}
}

// WithEnvironment overrides the token environment (default: the configured environment).
func WithEnvironment(environment string) GenerateOption {
	return func(o *generateOptions) {
		o.environment = environment
	}
}

// WithName labels the token for listings.
func WithName(name string) GenerateOption {
	return func(o *generateOptions) {
		o.name = name
	}
}

// WithMetadata stores extra attributes with the token record.
func WithMetadata(metadata map[string]string) GenerateOption {
	return func(o *generateOptions) {
		if o.metadata == nil {
			o.metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			o.metadata[k] = v
		}
	}
}

func getGenerateOpts(defaults APITokenConfig, opts ...GenerateOption) generateOptions {
	o := generateOptions{
		tokenType:   defaults.TokenType,
		environment: defaults.Environment,
	}
	if o.tokenType == "" {
		o.tokenType = DefaultTokenType
	}
	if o.environment == "" {
		o.environment = DefaultEnvironment
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
