package client

const (
	EndpointCreateAPIKey = "/auth/api-key"
	EndpointDeriveAPIKey = "/auth/derive-api-key"

	EndpointGetOrderBook = "/book"

	EndpointPostOrder = "/order"

	EndpointGetBalanceAllowance = "/balance-allowance"
)
