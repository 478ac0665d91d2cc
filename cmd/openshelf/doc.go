// Command openshelf drives a book marketplace from the command line: it
// publishes books and chapters, funds accounts, sells chapters and full
// books, manages stakes and claims, and issues access tokens.
//
// State lives in the store selected by the [store] section of the config
// file (SQLite by default). Run `openshelf config init` to write one.
package main
