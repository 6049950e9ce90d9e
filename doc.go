/*
Package ddns keeps registrar-hosted DNS "A" records pointed at a dynamic WAN IP.

Usage will usually start with [ddns.New],
which returns an [Updater].
An Updater resolves the current IP with a [Resolver]
and reconciles the records of every configured domain through a [Registrar].
Reconciliation updates existing A records for the requested subdomains
and creates the ones that are missing.

The Yandex PDD admin DNS API ([PDD]) is the default registrar;
Cloudflare zones are supported as well.
Additional options are listed in the docs for New.
*/
package ddns
