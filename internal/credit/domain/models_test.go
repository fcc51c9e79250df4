package domain

import (
	"testing"

	orgdomain "github.com/smallbiznis/agentdesk/internal/organization/domain"
	"github.com/stretchr/testify/assert"
)

func TestTotalCreditsFollowsPlan(t *testing.T) {
	org := orgdomain.Organization{
		CreditsPlan:         orgdomain.PlanConversation,
		ConversationCredits: 10,
		CallCredits:         5,
		MessageCredits:      100,
	}
	assert.Equal(t, 15.0, TotalCredits(org))

	org.CreditsPlan = orgdomain.PlanMessage
	assert.Equal(t, 100.0, TotalCredits(org))

	org.CreditsPlan = ""
	assert.Equal(t, 15.0, TotalCredits(org))
}

func TestParseCreditType(t *testing.T) {
	cases := map[string]CreditType{
		"conversation":         CreditConversation,
		"Message":              CreditMessage,
		" call ":               CreditCall,
		"conversation_credits": CreditConversation,
		"call_credits":         CreditCall,
	}
	for input, want := range cases {
		got, ok := ParseCreditType(input)
		assert.True(t, ok, input)
		assert.Equal(t, want, got, input)
	}

	_, ok := ParseCreditType("sms")
	assert.False(t, ok)
}

func TestCreditTypeColumnAndValue(t *testing.T) {
	org := orgdomain.Organization{ConversationCredits: 1, MessageCredits: 2, CallCredits: 3}
	assert.Equal(t, "conversation_credits", CreditConversation.Column())
	assert.Equal(t, 2.0, CreditMessage.ValueOf(org))
	assert.Equal(t, 3.0, CreditCall.ValueOf(org))
	assert.Empty(t, CreditType("sms").Column())
}

func TestParseOperation(t *testing.T) {
	op, ok := ParseOperation("DECREMENT")
	assert.True(t, ok)
	assert.Equal(t, OpDecrement, op)

	_, ok = ParseOperation("multiply")
	assert.False(t, ok)
}
