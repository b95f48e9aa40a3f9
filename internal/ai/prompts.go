package ai

import "github.com/ignite/linkedin-outreach/internal/domain"

// allowedIndustries is the closed set the search parser may emit.
var allowedIndustries = []string{
	"Software Development",
	"IT Services and IT Consulting",
	"Financial Services",
	"Banking",
	"Insurance",
	"Marketing Services",
	"Advertising Services",
	"Retail",
	"E-commerce",
	"Manufacturing",
	"Construction",
	"Real Estate",
	"Hospitals and Health Care",
	"Pharmaceutical Manufacturing",
	"Education",
	"Higher Education",
	"Legal Services",
	"Accounting",
	"Human Resources Services",
	"Staffing and Recruiting",
	"Telecommunications",
	"Transportation and Logistics",
	"Food and Beverage Services",
	"Hospitality",
	"Renewable Energy",
	"Automotive",
	"Consumer Goods",
	"Media Production",
	"Consulting",
	"Non-profit Organizations",
}

// allowedCompanySizes are the fixed headcount ranges the parser may emit.
var allowedCompanySizes = []string{
	"1-10", "11-50", "51-200", "201-500", "501-1000",
	"1001-5000", "5001-10000", "10001+",
}

const searchParserSystem = `You translate natural-language prospecting queries into structured LinkedIn search filters.
Return a JSON object with exactly these keys:
{"filters": {"industries": [], "company_sizes": [], "job_titles": [], "locations": [], "keywords": []},
 "interpretation": "one sentence restating the query",
 "confidence": 0.0-1.0}
industries must come from the known LinkedIn industry names; company_sizes must be among
1-10, 11-50, 51-200, 201-500, 501-1000, 1001-5000, 5001-10000, 10001+.
Leave a list empty when the query does not constrain it. Do not invent filters.`

const scorerSystem = `You are a B2B lead qualification expert. Rate how well the lead fits the
business's ideal customer profile.
Return a JSON object: {"score": 0-100, "label": "hot"|"warm"|"cold", "reason": "short explanation"}.
Score 80-100 only for strong title, industry, and company fit. 50-79 for partial fit. Below 50 for weak fit.`

const connectionDirectSystem = `You write LinkedIn connection request notes. The sender wants a direct approach:
mention the sender's company or offering by name and why it is relevant to the recipient.
Rules: maximum 300 characters, first person, no links, no greetings like "Dear", no hashtags.
One clear reason to connect. Write in the language of the lead's profile.`

const connectionGradualSystem = `You write LinkedIn connection request notes. The sender wants a gradual approach:
find common ground (industry, role, location, a genuine observation) and do NOT pitch or
mention any product or offering.
Rules: maximum 300 characters, first person, no links, no greetings like "Dear", no hashtags.
Write in the language of the lead's profile.`

const followUpSystem = `You write short LinkedIn follow-up messages in an ongoing outreach sequence.
Be conversational and specific to the lead. Never repeat an earlier message. No links unless
the lead asked. Maximum 500 characters. Plain text only.`

const phaseAnalyzerSystem = `You are the decision engine of a 5-phase LinkedIn outreach pipeline
(apertura -> calificacion -> valor, plus nurture and reactivacion).
Given the conversation and the current phase, decide what happens next.
Return a JSON object exactly like:
{"outcome": "advance"|"stay"|"nurture"|"park"|"meeting"|"exit",
 "next_phase": "apertura"|"calificacion"|"valor"|"nurture"|"reactivacion"|null,
 "sentiment": "hot"|"warm"|"cold",
 "buying_signals": ["..."],
 "signal_strength": "strong"|"moderate"|"weak"|"none",
 "suggested_angle": "...",
 "reason": "..."}
Guidance: "advance" when the lead engages positively and the phase goal is met; "stay" when
the reply is lukewarm but salvageable; "nurture" when interest is low but not hostile;
"meeting" when the lead asks for a call, demo, or pricing; "park" when they say not now;
"exit" when they are clearly not a fit or ask to stop. Maximum 2 messages per phase.`

// phaseSystems are the per-phase authoring prompts.
var phaseSystems = map[domain.PipelinePhase]string{
	domain.PhaseApertura: `You write the opening message of a LinkedIn conversation after a connection
was accepted. Goal: spark curiosity with a genuine question about the lead's work. Absolutely
no pitch, no product mention. Maximum 200 characters. Plain text only.`,

	domain.PhaseCalificacion: `You write a qualification message in an ongoing LinkedIn conversation.
Goal: learn whether the lead has the problem the sender solves, asking naturally about their
situation. Soft, consultative, no pitch yet. Maximum 300 characters. Plain text only.`,

	domain.PhaseValor: `You write a value-proposition message in an ongoing LinkedIn conversation.
Goal: tie the lead's stated situation to the sender's offering and suggest a low-friction next
step. Concrete, no buzzwords. Maximum 500 characters. Plain text only.`,

	domain.PhaseNurture: `You write a light-touch nurture message to a LinkedIn contact on a 6-8 week
cadence. Goal: stay on their radar with something useful or a friendly check-in. No pressure,
no pitch. Maximum 300 characters. Plain text only.`,

	domain.PhaseReactivacion: `You write a single re-opener to a LinkedIn contact who went silent for a
month. Goal: restart the conversation with a fresh angle, acknowledging the pause lightly.
Not guilt-trippy. Maximum 250 characters. Plain text only.`,
}

const sentimentSystem = `You analyze B2B sales conversations. Classify the lead's disposition and
surface buying signals.
Return a JSON object: {"sentiment": "hot"|"warm"|"cold", "buying_signals": ["..."], "summary": "..."}.`
