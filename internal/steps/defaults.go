package steps

// defaultDefs is the audience-audit graph. Each entry's Example doubles
// as the output contract shown to the provider.
var defaultDefs = []Def{
	{
		Key:   StepValidation,
		Title: "Business validation",
		Fields: []Field{
			{Name: "what_brand_sells", Type: FieldString},
			{Name: "who_needs_it", Type: FieldString},
			{Name: "why_they_need_it", Type: FieldString},
			{Name: "market_fit", Type: FieldString},
		},
		Task: "Restate what the business sells, who needs it and why, then judge the market fit " +
			"of the offer as described. Be specific; avoid generic marketing language.",
		Example: `{
  "what_brand_sells": "...",
  "who_needs_it": "...",
  "why_they_need_it": "...",
  "market_fit": "..."
}`,
	},
	{
		Key:           StepPortrait,
		Title:         "Audience portrait",
		Prerequisites: []Prerequisite{{Step: StepValidation}},
		Fields: []Field{
			{Name: "sociodemographics", Type: FieldString},
			{Name: "psychographics", Type: FieldString},
			{Name: "general_description", Type: FieldString},
		},
		Task: "Describe the core audience of the validated offer: sociodemographics, psychographics " +
			"and a general description a copywriter could work from.",
		Example: `{
  "sociodemographics": "...",
  "psychographics": "...",
  "general_description": "..."
}`,
	},
	{
		Key:              StepPortraitReview,
		Title:            "Portrait review",
		Kind:             KindReview,
		Source:           StepPortrait,
		Prerequisites:    []Prerequisite{{Step: StepPortrait}},
		ReviewCategories: []string{"changes", "additions", "removals"},
		Task: "Critique the audience portrait. Propose concrete changes to existing statements, " +
			"additions that are missing and removals of statements that are wrong or vague.",
		Example: `{
  "changes": [{"field": "psychographics", "current": "...", "suggestion": "...", "reasoning": "..."}],
  "additions": [{"field": "sociodemographics", "text": "...", "reasoning": "..."}],
  "removals": [{"field": "general_description", "text": "...", "reasoning": "..."}]
}`,
	},
	{
		Key:           StepPortraitFinal,
		Title:         "Final portrait",
		Kind:          KindFinalize,
		Source:        StepPortrait,
		Review:        StepPortraitReview,
		Prerequisites: []Prerequisite{{Step: StepPortrait}, {Step: StepPortraitReview}},
		Fields: []Field{
			{Name: "sociodemographics", Type: FieldString},
			{Name: "psychographics", Type: FieldString},
			{Name: "general_description", Type: FieldString},
		},
		Task: "Rewrite the audience portrait applying exactly the accepted review changes listed below. " +
			"Do not introduce changes that were not accepted.",
		Example: `{
  "sociodemographics": "...",
  "psychographics": "...",
  "general_description": "..."
}`,
	},
	{
		Key:           StepSegments,
		Title:         "Audience segments",
		Prerequisites: []Prerequisite{{Step: StepPortraitFinal}},
		Fields: []Field{
			{Name: "segments", Type: FieldList, Items: []string{"name", "description"}},
		},
		Task: "Split the final audience portrait into 3 to 7 distinct segments. Segments must not overlap " +
			"and each must be large enough to address with its own messaging.",
		Example: `{
  "segments": [
    {"name": "...", "description": "...", "sociodemographics": "..."}
  ]
}`,
	},
	{
		Key:              StepSegmentsReview,
		Title:            "Segments review",
		Kind:             KindReview,
		Source:           StepSegments,
		Prerequisites:    []Prerequisite{{Step: StepSegments}},
		ReviewCategories: []string{"overlaps", "too_broad", "too_narrow", "additions", "removals"},
		Task: "Review the segment list. Point out overlapping segments, segments that are too broad or " +
			"too narrow, segments that are missing and segments that should be removed.",
		Example: `{
  "overlaps": [{"segments": ["...", "..."], "suggestion": "...", "reasoning": "..."}],
  "too_broad": [{"segment": "...", "suggestion": "...", "reasoning": "..."}],
  "too_narrow": [{"segment": "...", "suggestion": "...", "reasoning": "..."}],
  "additions": [{"name": "...", "description": "...", "reasoning": "..."}],
  "removals": [{"segment": "...", "reasoning": "..."}]
}`,
	},
	{
		Key:           StepSegmentsFinal,
		Title:         "Final segments",
		Kind:          KindFinalize,
		Source:        StepSegments,
		Review:        StepSegmentsReview,
		Prerequisites: []Prerequisite{{Step: StepSegments}, {Step: StepSegmentsReview}},
		Fields: []Field{
			{Name: "segments", Type: FieldList, Items: []string{"name", "description"}},
		},
		Task: "Produce the final segment list by applying exactly the accepted review changes listed below " +
			"to the original segments. Keep names of unchanged segments identical.",
		Example: `{
  "segments": [
    {"name": "...", "description": "...", "sociodemographics": "..."}
  ]
}`,
	},
	{
		Key:           StepSegmentDetails,
		Title:         "Segment details",
		Scope:         ScopeSegment,
		Prerequisites: []Prerequisite{{Step: StepSegmentsFinal}},
		Fields: []Field{
			{Name: "characteristics", Type: FieldString},
			{Name: "needs", Type: FieldList},
			{Name: "values", Type: FieldList},
		},
		Task: "Detail the segment: its defining characteristics, its needs related to the offer and the values " +
			"that drive its decisions.",
		Example: `{
  "characteristics": "...",
  "needs": ["..."],
  "values": ["..."]
}`,
	},
	{
		Key:   StepJobs,
		Title: "Jobs to be done",
		Scope: ScopeSegment,
		// Every segment's details must be approved first.
		Prerequisites: []Prerequisite{{Step: StepSegmentDetails, All: true}},
		Fields: []Field{
			{Name: "functional_jobs", Type: FieldList},
			{Name: "emotional_jobs", Type: FieldList},
			{Name: "social_jobs", Type: FieldList},
		},
		Task: "List the functional, emotional and social jobs this segment hires the offer for. " +
			"Use the details of the other segments to keep the jobs distinctive.",
		Example: `{
  "functional_jobs": ["..."],
  "emotional_jobs": ["..."],
  "social_jobs": ["..."]
}`,
	},
	{
		Key:           StepPreferences,
		Title:         "Preferences",
		Scope:         ScopeSegment,
		Prerequisites: []Prerequisite{{Step: StepJobs}},
		Fields: []Field{
			{Name: "preferences", Type: FieldList, Items: []string{"name", "description"}},
		},
		Task: "Describe the segment's preferences when choosing a solution for its jobs: formats, channels, price " +
			"expectations and brands it trusts.",
		Example: `{
  "preferences": [{"name": "...", "description": "..."}]
}`,
	},
	{
		Key:           StepDifficulties,
		Title:         "Difficulties",
		Scope:         ScopeSegment,
		Prerequisites: []Prerequisite{{Step: StepPreferences}},
		Fields: []Field{
			{Name: "difficulties", Type: FieldList, Items: []string{"name", "description"}},
		},
		Task: "List the difficulties the segment meets while getting its jobs done with current solutions.",
		Example: `{
  "difficulties": [{"name": "...", "description": "..."}]
}`,
	},
	{
		Key:           StepTriggers,
		Title:         "Triggers",
		Scope:         ScopeSegment,
		Prerequisites: []Prerequisite{{Step: StepDifficulties}},
		Fields: []Field{
			{Name: "triggers", Type: FieldList, Items: []string{"name", "description"}},
		},
		Task: "List the situations and events that push the segment to start looking for a solution now.",
		Example: `{
  "triggers": [{"name": "...", "description": "..."}]
}`,
	},
	{
		Key:           StepPains,
		Title:         "Pain points",
		Scope:         ScopeSegment,
		Prerequisites: []Prerequisite{{Step: StepTriggers}},
		Fields: []Field{
			{Name: "pains", Type: FieldList, Items: []string{"name", "description"}},
		},
		Task: "List 5 to 10 pain points of the segment. Each pain needs a name, a description, the deep triggers " +
			"behind it and real-life examples of how it shows up.",
		Example: `{
  "pains": [
    {"name": "...", "description": "...", "deep_triggers": ["..."], "examples": ["..."]}
  ]
}`,
	},
	{
		Key:           StepPainsRanking,
		Title:         "Pain ranking",
		Scope:         ScopeSegment,
		Prerequisites: []Prerequisite{{Step: StepPains}},
		Fields: []Field{
			{Name: "rankings", Type: FieldList, Items: []string{"pain_id", "impact_score", "is_top_pain"}},
		},
		Task: "Rank the segment's pain points by impact on the purchase decision (score 1-10) and flag the top " +
			"pains worth dedicated messaging. Reference pains by the ids given below.",
		Example: `{
  "rankings": [
    {"pain_id": "...", "impact_score": 8, "is_top_pain": true, "reasoning": "..."}
  ]
}`,
	},
	{
		Key:           StepCanvas,
		Title:         "Pain canvas",
		Scope:         ScopePain,
		TopOnly:       true,
		Prerequisites: []Prerequisite{{Step: StepPainsRanking}},
		Fields: []Field{
			{Name: "emotional_aspects", Type: FieldList},
			{Name: "behavioral_patterns", Type: FieldList},
			{Name: "buying_signals", Type: FieldList},
		},
		Task: "Build a canvas for this top pain: the emotions it produces, the behaviour it causes and the " +
			"signals that the person is ready to buy a solution.",
		Example: `{
  "emotional_aspects": ["..."],
  "behavioral_patterns": ["..."],
  "buying_signals": ["..."]
}`,
	},
	{
		Key:           StepCanvasExtended,
		Title:         "Extended canvas",
		Scope:         ScopePain,
		TopOnly:       true,
		Prerequisites: []Prerequisite{{Step: StepCanvas}},
		Fields: []Field{
			{Name: "customer_journey", Type: FieldObject},
			{Name: "emotional_peaks", Type: FieldList},
			{Name: "objections", Type: FieldList},
		},
		Task: "Extend the canvas with the customer journey around this pain, the emotional peaks along it and the " +
			"objections to overcome.",
		Example: `{
  "customer_journey": {"awareness": "...", "consideration": "...", "decision": "..."},
  "emotional_peaks": ["..."],
  "objections": ["..."]
}`,
	},
	{
		Key:   StepStrategy,
		Title: "Messaging strategy",
		Prerequisites: []Prerequisite{
			{Step: StepSegmentsFinal},
			{Step: StepCanvasExtended, All: true},
		},
		Fields: []Field{
			{Name: "positioning", Type: FieldString},
			{Name: "messages", Type: FieldList},
			{Name: "channels", Type: FieldList},
		},
		Task: "Summarize the audit into a messaging strategy: a positioning statement, key messages per top pain " +
			"and the channels to deliver them.",
		Example: `{
  "positioning": "...",
  "messages": [{"segment": "...", "pain": "...", "message": "..."}],
  "channels": ["..."]
}`,
	},
}

// Default returns the audience-audit step graph.
func Default() *Registry {
	r, err := NewRegistry(defaultDefs...)
	if err != nil {
		panic("steps: invalid default graph: " + err.Error())
	}
	return r
}
