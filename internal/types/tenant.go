package types

// SystemTenant is the tenant used for telephony traffic that arrives
// without an explicit tenant identifier.
const SystemTenant = "cskefu"
