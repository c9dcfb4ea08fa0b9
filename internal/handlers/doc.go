// Package handlers provides the HTTP request handlers for the download API.
//
// Every supported platform shares one route shape under /api/{platform}:
//   - /info returns post metadata and the format ladder
//   - /download streams one format (or a merge for "video+audio" itags)
//   - /merge muxes a separate video and audio format
//   - /download-audio streams the audio track transcoded to MP3 or AAC
//
// Downloads run through the pipeline package. Errors found before the body
// starts are answered with a JSON {success:false} body; after that the
// handler aborts the connection. Health, readiness and version endpoints
// live here too.
package handlers
