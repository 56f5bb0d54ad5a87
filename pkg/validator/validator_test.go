package validator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Title string    `validate:"required,min=3,max=10"`
	Limit int       `validate:"gte=0"`
	Date  time.Time `validate:"future"`
	Seats int       `validate:"positive"`
}

func valid() sample {
	return sample{
		Title: "Jazz",
		Limit: 5,
		Date:  time.Now().Add(time.Hour),
		Seats: 10,
	}
}

func TestValidateOK(t *testing.T) {
	assert.NoError(t, Validate(context.Background(), valid()))
}

func TestValidateRequired(t *testing.T) {
	s := valid()
	s.Title = ""
	err := Validate(context.Background(), s)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), ErrFieldRequired)
}

func TestValidateMin(t *testing.T) {
	s := valid()
	s.Title = "ab"
	err := Validate(context.Background(), s)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), ErrFieldBelowMinLen)
}

func TestValidateFuture(t *testing.T) {
	s := valid()
	s.Date = time.Now().Add(-time.Hour)
	err := Validate(context.Background(), s)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Date must be in the future")
}

func TestValidatePositive(t *testing.T) {
	s := valid()
	s.Seats = 0
	err := Validate(context.Background(), s)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Value must be positive")
}
