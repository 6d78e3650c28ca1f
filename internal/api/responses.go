package api

type ErrorResponse struct {
	Error string `json:"error" example:"No seats left on this timeslot"`
}

type MessageResponse struct {
	Message string `json:"message" example:"Reservation cancelled"`
}

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}
