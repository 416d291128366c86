package api

// RewriteRequest is the body of POST /api/rewrite.
type RewriteRequest struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

// RewriteResponse is returned by POST /api/rewrite.
type RewriteResponse struct {
	RewrittenURL string `json:"rewrittenUrl"`
}
