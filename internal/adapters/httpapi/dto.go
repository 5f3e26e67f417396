package httpapi

import (
	"time"

	"github.com/oapi-codegen/nullable"

	"github.com/Overland-East-Bay/carpool-api/internal/domain"
)

type CreateRideRequest struct {
	Date        string `json:"date"`
	Time        string `json:"time"`
	Vehicle     string `json:"vehicle"`
	Pickup      string `json:"pickup"`
	Destination string `json:"destination"`
	TotalSeats  int    `json:"totalSeats"`
}

type PostMessageRequest struct {
	Text string `json:"text"`
}

type Person struct {
	UserId      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type Fare struct {
	Distance float64 `json:"distance"`
	Price    float64 `json:"price"`
}

type RideStatus string

const (
	RideStatusOpen RideStatus = "open"
	RideStatusFull RideStatus = "full"
)

type Ride struct {
	Id             string     `json:"id"`
	Host           Person     `json:"host"`
	Date           string     `json:"date"`
	Time           string     `json:"time"`
	Vehicle        string     `json:"vehicle"`
	Pickup         string     `json:"pickup"`
	Destination    string     `json:"destination"`
	TotalSeats     int        `json:"totalSeats"`
	AvailableSeats int        `json:"availableSeats"`
	Status         RideStatus `json:"status"`
	Fare           Fare       `json:"fare"`
	Passengers     []Person   `json:"passengers"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type RideResponse struct {
	Ride Ride `json:"ride"`
}

type RideListResponse struct {
	Rides []Ride `json:"rides"`
}

type Message struct {
	Id             string    `json:"id"`
	ConversationId string    `json:"conversationId"`
	SenderId       string    `json:"senderId"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
}

type MessageResponse struct {
	Message Message `json:"message"`
}

type Conversation struct {
	Id             string    `json:"id"`
	Participants   []Person  `json:"participants"`
	Messages       []Message `json:"messages"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

type ConversationResponse struct {
	Conversation Conversation `json:"conversation"`
}

// ConversationSummary is one entry of the caller's conversation list.
type ConversationSummary struct {
	Id             string                     `json:"id"`
	With           Person                     `json:"with"`
	LastMessage    nullable.Nullable[Message] `json:"lastMessage"`
	LastActivityAt time.Time                  `json:"lastActivityAt"`
}

type ConversationListResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
}

func toRide(r domain.Ride) Ride {
	out := Ride{
		Id:             string(r.ID),
		Host:           Person{UserId: string(r.HostID), DisplayName: r.HostName},
		Date:           r.Schedule.Date,
		Time:           r.Schedule.Time,
		Vehicle:        r.Vehicle,
		Pickup:         r.Pickup,
		Destination:    r.Destination,
		TotalSeats:     r.TotalSeats,
		AvailableSeats: r.AvailableSeats,
		Status:         RideStatusOpen,
		Fare:           Fare{Distance: r.Fare.Distance, Price: r.Fare.Price},
		Passengers:     make([]Person, 0, len(r.Passengers)),
		CreatedAt:      r.CreatedAt.UTC(),
	}
	if r.IsFull() {
		out.Status = RideStatusFull
	}
	for _, p := range r.Passengers {
		out.Passengers = append(out.Passengers, Person{UserId: string(p.UserID), DisplayName: p.DisplayName})
	}
	return out
}

func toRides(rs []domain.Ride) []Ride {
	out := make([]Ride, 0, len(rs))
	for _, r := range rs {
		out = append(out, toRide(r))
	}
	return out
}

func toMessage(m domain.Message) Message {
	return Message{
		Id:             string(m.ID),
		ConversationId: string(m.ConversationID),
		SenderId:       string(m.SenderID),
		Text:           m.Text,
		CreatedAt:      m.CreatedAt.UTC(),
	}
}

func toConversation(c domain.Conversation) Conversation {
	out := Conversation{
		Id:             string(c.ID),
		Participants:   make([]Person, 0, len(c.Participants)),
		Messages:       make([]Message, 0, len(c.Messages)),
		CreatedAt:      c.CreatedAt.UTC(),
		LastActivityAt: c.LastActivity().UTC(),
	}
	for _, p := range c.Participants {
		out.Participants = append(out.Participants, Person{UserId: string(p.UserID), DisplayName: p.DisplayName})
	}
	for _, m := range c.Messages {
		out.Messages = append(out.Messages, toMessage(m))
	}
	return out
}

func toConversationSummary(c domain.Conversation, caller domain.UserID) ConversationSummary {
	other := c.Other(caller)
	out := ConversationSummary{
		Id:             string(c.ID),
		With:           Person{UserId: string(other.UserID), DisplayName: other.DisplayName},
		LastActivityAt: c.LastActivity().UTC(),
	}
	if m, ok := c.LastMessage(); ok {
		out.LastMessage = nullable.NewNullableWithValue(toMessage(m))
	} else {
		out.LastMessage = nullable.NewNullNullable[Message]()
	}
	return out
}
