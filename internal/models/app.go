package models

// AppTypeGallery is the default partition for app listings
const AppTypeGallery = "gallery"

// ValidStores defines the storefronts an app listing can point at
var ValidStores = map[string]bool{
	"google":   true,
	"apple":    true,
	"onestore": true,
	"galaxy":   true,
	"web":      true,
	"other":    true,
}

// ValidAppStatuses defines allowed app listing statuses
var ValidAppStatuses = map[string]bool{
	"published":   true,
	"in-review":   true,
	"development": true,
	"hidden":      true,
}

// AppItem is an application listing in the gallery.
// IsFeatured and IsEvent are derived from the membership lists on read and
// are never written back with the item.
type AppItem struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Developer      string   `json:"developer"`
	Description    string   `json:"description"`
	IconURL        string   `json:"iconUrl"`
	ScreenshotURLs []string `json:"screenshotUrls"`
	Store          string   `json:"store"`
	Status         string   `json:"status"`
	Rating         float64  `json:"rating"`
	Downloads      string   `json:"downloads"`
	Views          int      `json:"views"`
	Likes          int      `json:"likes"`
	UploadDate     string   `json:"uploadDate"`
	Tags           []string `json:"tags"`
	StoreURL       string   `json:"storeUrl,omitempty"`
	Version        string   `json:"version,omitempty"`
	Size           string   `json:"size,omitempty"`
	Category       string   `json:"category,omitempty"`
	Type           string   `json:"type,omitempty"`

	IsFeatured bool `json:"isFeatured"`
	IsEvent    bool `json:"isEvent"`
}

// AppType returns the partition the app belongs to
func (a AppItem) AppType() string {
	if a.Type == "" {
		return AppTypeGallery
	}
	return a.Type
}

// Stored returns a copy with the derived flags cleared
func (a AppItem) Stored() AppItem {
	a.IsFeatured = false
	a.IsEvent = false
	return a
}

// Files returns every uploaded file URL referenced by the app
func (a AppItem) Files() []string {
	var urls []string
	if a.IconURL != "" {
		urls = append(urls, a.IconURL)
	}
	for _, u := range a.ScreenshotURLs {
		if u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// AppUpdate carries the editable fields of an app. Nil fields are left unchanged.
type AppUpdate struct {
	Name           *string   `json:"name,omitempty"`
	Developer      *string   `json:"developer,omitempty"`
	Description    *string   `json:"description,omitempty"`
	IconURL        *string   `json:"iconUrl,omitempty"`
	ScreenshotURLs *[]string `json:"screenshotUrls,omitempty"`
	Store          *string   `json:"store,omitempty"`
	Status         *string   `json:"status,omitempty"`
	Rating         *float64  `json:"rating,omitempty"`
	Downloads      *string   `json:"downloads,omitempty"`
	Tags           *[]string `json:"tags,omitempty"`
	StoreURL       *string   `json:"storeUrl,omitempty"`
	Version        *string   `json:"version,omitempty"`
	Size           *string   `json:"size,omitempty"`
	Category       *string   `json:"category,omitempty"`
}

// AppFilter narrows an app listing
type AppFilter struct {
	Query    string
	Type     string
	Featured *bool
	Event    *bool
}
