package dto

// LoginRequest represents the login request payload
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token string      `json:"token"`
	User  *UserOutput `json:"user"`
}

// RegisterRequest represents the registration request payload
type RegisterRequest struct {
	Username      string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Password      string `json:"password" validate:"required,min=8,max=72"`
	WalletAddress string `json:"wallet_address"`
}
