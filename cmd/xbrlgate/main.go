// Package main is the entry point for xbrlgate.
//
//	@title						xbrlgate API
//	@version					1.0
//	@description				API key authentication, tiered rate limiting and usage recording for the XBRL data API.
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						X-API-Key
//	@description				API key (Authorization: Bearer is also accepted)
//
//	@securityDefinitions.apikey	AdminAuth
//	@in							header
//	@name						X-Admin-Token
//	@description				Admin token checked against admin.token_hash
package main

func main() {
	Execute()
}
