/*
Package platform knows the supported sites and plans each download.

The registry (All) maps a platform name to the hosts it owns and its default
extractor format selectors. A Planner turns a download, merge or audio
request into a pipeline.Plan:

  - video downloads stream directly, unless the format token names a
    separate video and audio format ("137+140"), which becomes a merge;
  - audio downloads are transcoded on the fly to MP3, or AAC when the
    transcoder lacks an MP3 encoder;
  - platforms flagged MobileRelay re-encode through a temp file so the
    container is complete before it is sent.

Filenames are derived from the client-supplied title with the filename
package.
*/
package platform
