package signing

const (
	// ClobDomainName is the EIP-712 domain for CLOB auth attestations.
	ClobDomainName = "ClobAuthDomain"

	// ClobVersion is the auth domain version.
	ClobVersion = "1"

	// MsgToSign is the fixed attestation message the CLOB expects.
	MsgToSign = "This message attests that I control the given wallet"
)
