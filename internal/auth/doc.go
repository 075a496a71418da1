// Package auth defines the token-verification seam used by the admin REST
// surface and, optionally, the MCP surface.
//
// The MCP surface is open by default; the admin surface requires a bearer
// token verified either statically (ADMIN_AUTH_TOKEN) or, when the token
// looks like a JWT, via JWTVerifier. Production deployments can swap in an
// external identity provider by implementing TokenVerifier.
package auth
