package server

type CreateLoanResponse struct {
	LoanID int64 `json:"loan_id"` //nolint:tagliatelle
}

type AuthUserResponse struct {
	Token     string `json:"access_token"` //nolint:tagliatelle
	TokenType string `json:"token_type"`   //nolint:tagliatelle
}

type CreateUserResponse struct {
	Token     string `json:"access_token"` //nolint:tagliatelle
	TokenType string `json:"token_type"`   //nolint:tagliatelle
}
