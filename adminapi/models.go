package adminapi

// Page is a Spring-style paginated result.
type Page[T any] struct {
	Content          []T  `json:"content"`
	TotalElements    int  `json:"totalElements"`
	TotalPages       int  `json:"totalPages"`
	Size             int  `json:"size"`
	Number           int  `json:"number"`
	NumberOfElements int  `json:"numberOfElements"`
	First            bool `json:"first"`
	Last             bool `json:"last"`
	Empty            bool `json:"empty"`
}

// Author is the user record embedded in news and job posts.
type Author struct {
	ID            int64  `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	Role          string `json:"role,omitempty"`
	OAuthProvider string `json:"oauthProvider,omitempty"`
}

type Meetup struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Parking        bool   `json:"parking"`
	Location       string `json:"location"`
	MaxSeats       int    `json:"maxSeats"`
	AvailableSeats int    `json:"availableSeats"`
	Provided       string `json:"provided"`
	MeetupDate     string `json:"meetupDate"`
	OrganizerID    int64  `json:"organizerId"`
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime"`
	ImageName      string `json:"imageName,omitempty"`
	ImageURL       string `json:"imageURL,omitempty"`
}

// MeetupForm creates or updates a meetup.
type MeetupForm struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Parking     bool   `json:"parking"`
	Location    string `json:"location"`
	MaxSeats    int    `json:"maxSeats"`
	Provided    string `json:"provided"`
	MeetupDate  string `json:"meetupDate"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
}

type Speaker struct {
	ID               int64  `json:"id"`
	Username         string `json:"username"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	Organization     string `json:"organization"`
	Position         string `json:"position"`
	Bio              string `json:"bio"`
	ShortDescription string `json:"shortDescription"`
	Experience       string `json:"experience"`
	Topic            string `json:"topic"`
	LinkedinURL      string `json:"linkedinUrl,omitempty"`
	ImageName        string `json:"imageName,omitempty"`
	ImageURL         string `json:"imageURL,omitempty"`
	Category         string `json:"category"`
	CreatedAt        string `json:"createdAt"`
}

type SpeakerForm struct {
	UserID           int64  `json:"userId"`
	CategoryID       int64  `json:"categoryId"`
	Organization     string `json:"organization"`
	Position         string `json:"position"`
	Bio              string `json:"bio"`
	ShortDescription string `json:"shortDescription"`
	Experience       string `json:"experience"`
	Topic            string `json:"topic"`
	LinkedinURL      string `json:"linkedinUrl,omitempty"`
}

type Note struct {
	ID          int64  `json:"id"`
	Status      string `json:"status"`
	Title       string `json:"title"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
}

type NoteForm struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

type Keynote struct {
	ID        int64   `json:"id"`
	Speaker   Speaker `json:"speaker"`
	Subject   string  `json:"subject"`
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
	CreatedAt string  `json:"createdAt"`
	ImageName string  `json:"imageName,omitempty"`
	ImageURL  string  `json:"imageURL,omitempty"`
}

type KeynoteForm struct {
	SpeakerID int64  `json:"speakerId"`
	Subject   string `json:"subject"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// MeetupDetails is a meetup with its program.
type MeetupDetails struct {
	Meetup   Meetup    `json:"meetup"`
	Speakers []Speaker `json:"speakers"`
	Notes    []Note    `json:"notes"`
	Keynotes []Keynote `json:"keynotes"`
}

type News struct {
	ID              int64  `json:"id"`
	User            Author `json:"user"`
	Title           string `json:"title"`
	Content         string `json:"content"`
	Type            string `json:"type"`
	ContactPhone    string `json:"contactPhone,omitempty"`
	ContactEmail    string `json:"contactEmail,omitempty"`
	TwitterProfile  string `json:"twitterProfile,omitempty"`
	LinkedinProfile string `json:"linkedinProfile,omitempty"`
	FacebookProfile string `json:"facebookProfile,omitempty"`
	InstagramHandle string `json:"instagramHandle,omitempty"`
	ImageName       string `json:"imageName,omitempty"`
	ImageURL        string `json:"imageURL,omitempty"`
	CreatedAt       string `json:"createdAt"`
}

type NewsForm struct {
	UserID          int64  `json:"userId,omitempty"`
	Title           string `json:"title"`
	Content         string `json:"content"`
	Type            string `json:"type"`
	ContactPhone    string `json:"contactPhone,omitempty"`
	ContactEmail    string `json:"contactEmail,omitempty"`
	TwitterProfile  string `json:"twitterProfile,omitempty"`
	LinkedinProfile string `json:"linkedinProfile,omitempty"`
	FacebookProfile string `json:"facebookProfile,omitempty"`
	InstagramHandle string `json:"instagramHandle,omitempty"`
}

type JobPost struct {
	ID                 int64  `json:"id"`
	User               Author `json:"user"`
	Category           string `json:"category"`
	Title              string `json:"title"`
	Content            string `json:"content"`
	CompanyName        string `json:"companyName"`
	RequiredExperience string `json:"requiredExperience"`
	Technologies       string `json:"technologies,omitempty"`
	JobOfferStatus     string `json:"jobOfferStatus"`
	JobType            string `json:"jobType"`
	JobBenefits        string `json:"jobBenefits,omitempty"`
	Remote             bool   `json:"remote"`
	PlaceOfWork        string `json:"placeOfWork,omitempty"`
	SalaryRange        string `json:"salaryRange,omitempty"`
	ContactPhone       string `json:"contactPhone,omitempty"`
	ContactEmail       string `json:"contactEmail,omitempty"`
	CreatedAt          string `json:"createdAt"`
	ImageName          string `json:"imageName,omitempty"`
	ImageURL           string `json:"imageURL,omitempty"`
}

type JobForm struct {
	Title              string `json:"title"`
	Category           string `json:"category,omitempty"`
	Content            string `json:"content,omitempty"`
	CompanyName        string `json:"companyName"`
	RequiredExperience string `json:"requiredExperience"`
	Technologies       string `json:"technologies,omitempty"`
	JobOfferStatus     string `json:"jobOfferStatus,omitempty"`
	JobType            string `json:"jobType,omitempty"`
	JobBenefits        string `json:"jobBenefits,omitempty"`
	Remote             bool   `json:"remote"`
	PlaceOfWork        string `json:"placeOfWork,omitempty"`
	SalaryRange        string `json:"salaryRange,omitempty"`
	ContactPhone       string `json:"contactPhone,omitempty"`
	ContactEmail       string `json:"contactEmail,omitempty"`
}

// Statistics are the platform totals shown on the dashboard.
type Statistics struct {
	TotalSpeakers int `json:"totalSpeakers"`
	TotalUsers    int `json:"totalUsers"`
	TotalEvents   int `json:"totalEvents"`
}
