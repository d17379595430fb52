/*
Package main (doc.go) :
This is a CLI tool to mirror a folder of Google Drive to a local directory.

gdmirror walks a folder (or a whole shared drive) and recreates it below a local directory. Running it again only fetches what is missing, so an interrupted or failed run is resumed by simply running it again. This tool has the following features.

- Recreate the folder tree with names that are safe on Windows, macOS and Linux.

- Export Google Docs, Sheets, Slides and Drawings to docx, xlsx, pptx and png.

- When a document is too large to be exported, write a small link file pointing at it.

- Skip files whose local copy is already complete. Completeness is judged by presence, size or md5 checksum.

- Keep local paths within a length limit by shortening directory and file names.

- Retry transient errors of Drive API with exponential backoff.

---------------------------------------------------------------

# How to Install
Use go install.

$ go install github.com/tanaikech/gdmirror@latest

# Usage
With OAuth2 client credentials. At the first run, a token is retrieved and saved.

$ gdmirror -f [folder ID or URL] -c credentials.json -d ./backup

With a service account.

$ gdmirror --drive-id [shared drive ID] --service-account sa.json -d ./backup

Show the tree without downloading. Global options go before the command name.

$ gdmirror -f [folder ID] -key [API key] info

---------------------------------------------------------------
*/
package main
