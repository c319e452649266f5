package adminapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Meetup listing filters.
const (
	MeetupsUpcoming = "upcoming"
	MeetupsPast     = "past"
)

// MeetupQuery selects a page of meetups. Zero values use page 0, size 50
// and upcoming meetups.
type MeetupQuery struct {
	Page int
	Size int
	Type string
}

func (q MeetupQuery) values() url.Values {
	if q.Size <= 0 {
		q.Size = 50
	}
	if q.Type == "" {
		q.Type = MeetupsUpcoming
	}
	return url.Values{
		"page": {strconv.Itoa(q.Page)},
		"size": {strconv.Itoa(q.Size)},
		"type": {q.Type},
	}
}

// MeetupService manages meetups and their program.
type MeetupService struct {
	c *Client
}

func (s *MeetupService) List(ctx context.Context, q MeetupQuery) (Page[Meetup], error) {
	var page Page[Meetup]
	err := s.c.doJSON(ctx, http.MethodGet, "/public/meetups", q.values(), nil, &page)
	return page, err
}

func (s *MeetupService) Details(ctx context.Context, id int64) (MeetupDetails, error) {
	var d MeetupDetails
	err := s.c.doJSON(ctx, http.MethodGet, pathf("/public/meetups/%d/details", id), nil, nil, &d)
	return d, err
}

// Create uploads a new meetup with an optional cover image.
func (s *MeetupService) Create(ctx context.Context, form MeetupForm, image *File) (Meetup, error) {
	var m Meetup
	err := s.c.doForm(ctx, http.MethodPost, "/admin/meetups", form, "image", image, &m)
	return m, err
}

func (s *MeetupService) Update(ctx context.Context, id int64, form MeetupForm) (Meetup, error) {
	var m Meetup
	err := s.c.doJSON(ctx, http.MethodPut, pathf("/admin/meetups/%d", id), nil, form, &m)
	return m, err
}

// UpdateMedia replaces the cover image.
func (s *MeetupService) UpdateMedia(ctx context.Context, id int64, image File) (Meetup, error) {
	var m Meetup
	err := s.c.doForm(ctx, http.MethodPut, pathf("/admin/meetups/%d/media", id), struct{}{}, "file", &image, &m)
	return m, err
}

func (s *MeetupService) Delete(ctx context.Context, id int64) error {
	return s.c.doJSON(ctx, http.MethodDelete, pathf("/meetups/%d", id), nil, nil, nil)
}

func (s *MeetupService) AddSpeaker(ctx context.Context, meetupID int64, form SpeakerForm, image *File) (Speaker, error) {
	var sp Speaker
	err := s.c.doForm(ctx, http.MethodPost, pathf("/admin/meetups/%d/speakers", meetupID), form, "image", image, &sp)
	return sp, err
}

func (s *MeetupService) UpdateSpeaker(ctx context.Context, meetupID, speakerID int64, form SpeakerForm) (Speaker, error) {
	var sp Speaker
	err := s.c.doJSON(ctx, http.MethodPut, pathf("/meetups/%d/speakers/%d", meetupID, speakerID), nil, form, &sp)
	return sp, err
}

func (s *MeetupService) DeleteSpeaker(ctx context.Context, meetupID, speakerID int64) error {
	return s.c.doJSON(ctx, http.MethodDelete, pathf("/meetups/%d/speakers/%d", meetupID, speakerID), nil, nil, nil)
}

func (s *MeetupService) AddNote(ctx context.Context, meetupID int64, form NoteForm) (Note, error) {
	var n Note
	err := s.c.doJSON(ctx, http.MethodPost, pathf("/meetups/%d/notes", meetupID), nil, form, &n)
	return n, err
}

func (s *MeetupService) DeleteNote(ctx context.Context, meetupID, noteID int64) error {
	return s.c.doJSON(ctx, http.MethodDelete, pathf("/meetups/%d/notes/%d", meetupID, noteID), nil, nil, nil)
}

func (s *MeetupService) AddKeynote(ctx context.Context, meetupID int64, form KeynoteForm, file *File) (Keynote, error) {
	var k Keynote
	err := s.c.doForm(ctx, http.MethodPost, pathf("/meetups/%d/keynotes", meetupID), form, "file", file, &k)
	return k, err
}

func (s *MeetupService) DeleteKeynote(ctx context.Context, meetupID, keynoteID int64) error {
	return s.c.doJSON(ctx, http.MethodDelete, pathf("/meetups/%d/keynotes/%d", meetupID, keynoteID), nil, nil, nil)
}
