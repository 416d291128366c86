package strackr

// LinkBuilderResponse is the payload of GET /tools/linkbuilder
type LinkBuilderResponse struct {
	Results []LinkBuilderResult `json:"results"`
}

// LinkBuilderResult groups the advertisers matching the requested url
type LinkBuilderResult struct {
	Advertisers []Advertiser `json:"advertisers"`
}

// Advertiser is a merchant that can track the url
type Advertiser struct {
	Name        string       `json:"name"`
	Connections []Connection `json:"connections"`
}

// Connection is an affiliate network connection to an advertiser
type Connection struct {
	Links []Link `json:"links"`
}

// Link carries the ready-to-use tracking url
type Link struct {
	TrackingLink string `json:"trackinglink"`
}

// FirstTrackingLink returns the tracking link of the first link of the first
// connection of the first advertiser of the first result.
// ok is false when any level is missing or the link is empty.
func FirstTrackingLink(resp *LinkBuilderResponse) (link string, ok bool) {
	if resp == nil || len(resp.Results) == 0 {
		return "", false
	}

	result := resp.Results[0]
	if len(result.Advertisers) == 0 {
		return "", false
	}

	advertiser := result.Advertisers[0]
	if len(advertiser.Connections) == 0 {
		return "", false
	}

	conn := advertiser.Connections[0]
	if len(conn.Links) == 0 {
		return "", false
	}

	link = conn.Links[0].TrackingLink
	return link, link != ""
}
