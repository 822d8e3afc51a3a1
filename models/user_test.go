package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsLockedIsDerivedFromExpiry(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, (&User{}).IsLockedAt(now))
	assert.False(t, (&User{LockExpires: &past}).IsLockedAt(now))
	assert.True(t, (&User{LockExpires: &future}).IsLockedAt(now))
}

func TestPhoneNumberAndFullName(t *testing.T) {
	phone := "+15551234567"
	u := User{FirstName: "Ada", LastName: "Lovelace", Phone: &phone}

	assert.Equal(t, "+15551234567", u.PhoneNumber())
	assert.Equal(t, "Ada Lovelace", u.FullName())
	assert.Equal(t, "", (&User{}).PhoneNumber())
	assert.Equal(t, "Ada", (&User{FirstName: "Ada"}).FullName())
}
