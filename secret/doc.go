// Package secret resolves credentials referenced from configuration.
//
// Values may use ${VAR} environment references, which must be set
// (ExpandEnvStrict), and a whole value may be a reference of the form
//
//	secretref:<provider>:<ref>
//
// resolved through a registered Provider. FileProvider reads mounted secret
// files, so a config can carry
//
//	auth:
//	  jwt_secret: secretref:file:/run/secrets/dhivatar-jwt
package secret
