package conversation

import (
	"fmt"
	"strings"

	"github.com/BaSui01/agentcrew/types"
)

// Participant names used by the default crew.
const (
	BusinessAnalyst  = "BusinessAnalyst"
	SoftwareEngineer = "SoftwareEngineer"
	ProductOwner     = "ProductOwner"
)

// DefaultApprovalToken is the literal a reviewer emits to approve the delivery.
const DefaultApprovalToken = "%APPR%"

// =============================================================================
// 人设文本
// =============================================================================

const BusinessAnalystPersona = `You are a Business Analyst which will take the requirements from the user (also known as a 'customer')
and create a project plan for creating the requested app. The Business Analyst understands the user
requirements and creates detailed documents with requirements and costing. The documents should be
usable by the SoftwareEngineer as a reference for implementing the required features, and by the
Product Owner for reference to determine if the application delivered by the Software Engineer meets
all of the user's requirements.`

const SoftwareEngineerPersona = `You are a Software Engineer, and your goal is create a web app using HTML and JavaScript
by taking into consideration all the requirements given by the Business Analyst. The application should
implement all the requested features. Deliver the code to the Product Owner for review when completed.
You can also ask questions of the BusinessAnalyst to clarify any requirements that are unclear.`

// ProductOwnerPersona is rendered with the approval token in place of {{token}}.
const ProductOwnerPersona = `You are the Product Owner which will review the software engineer's code to ensure all user
requirements are completed. You are the guardian of quality, ensuring the final product meets
all specifications and receives the green light for release. Once all client requirements are
completed, you can approve the request by just responding "{{token}}". Do not ask any other agent
or the user for approval. If there are missing features, you will need to send a request back
to the SoftwareEngineer or BusinessAnalyst with details of the defect. To approve, respond with
the token {{token}}.`

// SelectionPrompt asks the model for the next speaker.
// {{history}} and {{last_agent}} are substituted at call time.
const SelectionPrompt = `Based on the conversation history, determine which agent should speak next.
Consider the following:
- If this is the start of the conversation, the BusinessAnalyst should speak first to understand requirements
- If the BusinessAnalyst has outlined requirements, the SoftwareEngineer should implement them
- If the SoftwareEngineer has presented code, the ProductOwner should review it
- If the ProductOwner has requested changes, the SoftwareEngineer should address them
- If there are requirement questions, the BusinessAnalyst should clarify

Return only the name of the agent who should speak next: {{participants}}.

History:
{{history}}

Last agent to speak: {{last_agent}}`

// DefaultParticipants builds the three-member crew sharing one completion capability.
func DefaultParticipants(responder Responder, approvalToken string) []Participant {
	if approvalToken == "" {
		approvalToken = DefaultApprovalToken
	}
	po := strings.ReplaceAll(ProductOwnerPersona, "{{token}}", approvalToken)
	return []Participant{
		NewParticipant(BusinessAnalyst, BusinessAnalystPersona, responder),
		NewParticipant(SoftwareEngineer, SoftwareEngineerPersona, responder),
		NewParticipant(ProductOwner, po, responder),
	}
}

// FormatHistory renders messages one per line as "author (role): content".
func FormatHistory(msgs []types.Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		author := m.Author
		if author == "" {
			author = "*"
		}
		fmt.Fprintf(&b, "%s (%s): %s", author, m.Role, m.Content)
	}
	return b.String()
}

func renderSelectionPrompt(template string, names []string, msgs []types.Message, lastSpeaker string) string {
	if lastSpeaker == "" {
		lastSpeaker = "none"
	}
	r := strings.NewReplacer(
		"{{participants}}", strings.Join(names, ", "),
		"{{history}}", FormatHistory(msgs),
		"{{last_agent}}", lastSpeaker,
	)
	return r.Replace(template)
}
