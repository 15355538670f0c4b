package extract

import (
	"fmt"
	"strings"

	"github.com/dgallion1/mindmapgen/internal/document"
)

// promptSet holds the per-level extraction guidance for one document type.
// The topic prompt sees raw chunk text; the subtopic and detail prompts are
// templates with a %s slot for the parent label.
type promptSet struct {
	topics    string
	subtopics string
	details   string
}

var typePrompts = map[DocumentType]promptSet{
	TypeTechnical: {
		topics: `Analyze this technical document focusing on core system components and their relationships.
Identify the major architectural or technical components that form complete, independent units of functionality. Each should be a distinct system, module, or process, critical to overall functionality, and connected to at least one other component.
Avoid topics that are too granular (implementation details), too broad (entire system categories), or pure documentation elements.`,
		subtopics: `For the technical component '%s', identify its essential sub-components and interfaces.
Each subtopic should have clear technical responsibilities, interface with other parts of the system, and contribute to the component's core purpose. Consider exposed interfaces, internal subsystems, data flow, and implemented protocols or standards.`,
		details: `For the technical subtopic '%s', identify specific implementation aspects and requirements.
Focus on key algorithms, data structures and formats, protocol specifications, performance characteristics, error handling, security considerations, and dependencies. Include concrete details that are implementation-specific and critical for understanding.`,
	},
	TypeScientific: {
		topics: `Analyze this scientific document focusing on major research components and methodological frameworks.
Identify main scientific themes that represent complete experimental or theoretical units supporting the research objectives. Consider the primary research questions, methodological approaches, theoretical frameworks, and experimental designs.
Avoid topics that are too specific (individual measurements) or too broad (entire fields of study).`,
		subtopics: `For the scientific theme '%s', identify key methodological elements and experimental components.
Each subtopic should represent a distinct experimental or analytical approach that contributes to scientific rigor and reproducibility. Consider methods employed, variables measured, controls, analytical techniques, and data validation.`,
		details: `For the scientific subtopic '%s', extract specific experimental parameters and results.
Focus on measurement specifications, statistical analyses, data collection procedures, validation methods, error margins, and equipment or environmental conditions. Include details that are quantifiable and reproducible.`,
	},
	TypeNarrative: {
		topics: `Analyze this narrative document focusing on storytelling elements and plot development.
Identify major narrative components that represent complete story arcs, essential narrative structures, or key story developments. Consider primary plot points, character arcs, themes, and settings.
Avoid topics that are too specific (individual scenes) or too broad (entire genres).`,
		subtopics: `For the narrative theme '%s', identify key story elements and developments.
Each subtopic should support story progression, connect to character development, or contribute to theme exploration. Consider plot developments, character interactions, conflicts, and important setting details.`,
		details: `For the narrative subtopic '%s', extract specific story details and elements.
Focus on scene descriptions, character motivations, dialogue highlights, setting details, symbolic elements, and plot connections. Include details that advance the story, develop characters, or support themes.`,
	},
	TypeBusiness: {
		topics: `Analyze this business document focusing on strategic initiatives and market opportunities.
Identify major business components that represent complete strategies, essential market approaches, or key business objectives connected to organizational goals. Consider objectives, targeted market opportunities, strategic initiatives, and required capabilities.
Avoid topics that are too specific (individual tactics), too broad (entire industries), or purely administrative.`,
		subtopics: `For the business theme '%s', identify key strategic elements and approaches.
Each subtopic should support strategic objectives, connect to market opportunities, or contribute to growth. Consider proposed strategies, target segments, required resources, competitive advantages, and implementation steps.`,
		details: `For the business subtopic '%s', extract specific strategic details and requirements.
Focus on market metrics, financial projections, resource requirements, implementation timelines, success metrics, risk factors, and growth opportunities. Include details that are measurable and action-oriented.`,
	},
	TypeAcademic: {
		topics: `Analyze this academic document focusing on scholarly arguments and theoretical frameworks.
Identify major academic components that represent complete theoretical concepts, scholarly arguments, or key academic positions connected to existing literature. Consider the primary theoretical frameworks, scholarly debates, and research questions.
Avoid topics that are too specific (individual citations) or too broad (entire fields).`,
		subtopics: `For the academic theme '%s', identify key theoretical elements and arguments.
Each subtopic should support scholarly analysis and connect to the literature. Consider specific arguments made, evidence presented, applicable theoretical models, and counterarguments.`,
		details: `For the academic subtopic '%s', extract specific scholarly evidence and arguments.
Focus on research findings, theoretical implications, methodological details, literature connections, critical analyses, and supporting evidence. Include details that are evidence-based and theoretically relevant.`,
	},
	TypeLegal: {
		topics: `Analyze this legal document focusing on key legal principles and frameworks.
Identify major legal components that represent complete legal concepts or arguments, foundational principles, or key rights, obligations, and requirements. Consider the primary legal issues, applicable statutory frameworks, and relevant precedents.
Avoid topics that are too specific (individual clauses) or too broad (entire bodies of law).`,
		subtopics: `For the legal theme '%s', identify key legal elements and requirements.
Each subtopic should represent a distinct legal requirement or concept supporting compliance or enforcement. Consider obligations that arise, rights established, required procedures, applicable legal tests, and exceptions.`,
		details: `For the legal subtopic '%s', extract specific legal provisions and requirements.
Focus on statutory references, case law citations, compliance requirements, procedural steps, deadlines, jurisdictional requirements, and enforcement mechanisms. Include details that are legally binding and compliance-critical.`,
	},
	TypeMedical: {
		topics: `Analyze this medical document focusing on key clinical concepts and patient care aspects.
Identify major medical components that represent complete clinical concepts, diagnostic or treatment frameworks, or key medical protocols. Consider primary conditions, treatment approaches, diagnostic frameworks, and measured outcomes.
Avoid topics that are too specific (individual symptoms), too broad (entire medical fields), or non-clinical.`,
		subtopics: `For the medical theme '%s', identify key clinical elements and protocols.
Each subtopic should support patient care decisions and connect to medical evidence. Consider indicated treatments, diagnostic criteria, required monitoring, contraindications, and relevant patient factors.`,
		details: `For the medical subtopic '%s', extract specific clinical guidelines and parameters.
Focus on dosage specifications, treatment protocols, monitoring requirements, clinical indicators, risk factors, side effects, and follow-up procedures. Include details that are clinically relevant and evidence-based.`,
	},
	TypeInstructional: {
		topics: `Analyze this instructional document focusing on key learning objectives and educational frameworks.
Identify major instructional components that represent complete learning units, coherent educational modules, or key competencies tied to learning outcomes. Consider the primary learning objectives, skill sets developed, and knowledge areas covered.
Avoid topics that are too specific (individual facts) or too broad (entire subjects).`,
		subtopics: `For the instructional theme '%s', identify key learning elements and approaches.
Each subtopic should support skill development and connect to learning objectives. Consider skills taught, concepts introduced, practice activities, assessment methods, and prerequisites.`,
		details: `For the instructional subtopic '%s', extract specific learning activities and resources.
Focus on practice exercises, examples, assessment criteria, learning resources, key definitions, common mistakes, and success indicators. Include details that are skill-building and practice-oriented.`,
	},
	TypeAnalytical: {
		topics: `Analyze this analytical document focusing on key insights and data patterns.
Identify major analytical themes that represent complete frameworks, reveal significant patterns or trends, and support evidence-based conclusions. Consider the primary analytical questions, major patterns in the data, and key driving metrics.
Avoid topics that are too granular (individual data points) or purely descriptive without analytical value.`,
		subtopics: `For the analytical theme '%s', identify key metrics and analytical approaches.
Each subtopic should represent a distinct analytical method or metric contributing to data-driven insight. Consider analyses performed, metrics calculated, statistical approaches, and how conclusions were validated.`,
		details: `For the analytical subtopic '%s', extract specific findings and supporting evidence.
Focus on statistical results, trend analyses, correlation findings, significance measures, confidence intervals, and validation results. Include details that are quantifiable and evidence-based.`,
	},
	TypeProcedural: {
		topics: `Analyze this procedural document focusing on systematic processes and workflows.
Identify major procedural components that represent complete process units, coherent workflow stages, or key procedures connected to the overall flow. Consider the primary process phases, workflow sequences, critical paths, and decision points.
Avoid topics that are too specific (individual actions) or too broad (entire systems).`,
		subtopics: `For the procedural theme '%s', identify key process elements and requirements.
Each subtopic should represent a distinct process step supporting workflow progression. Consider required steps, needed inputs, produced outputs, applicable conditions, and validations.`,
		details: `For the procedural subtopic '%s', extract specific step requirements and checks.
Focus on step-by-step instructions, input requirements, quality checks, decision criteria, exception handling, and completion indicators. Include details that are action-oriented and sequence-specific.`,
	},
	TypeGeneral: {
		topics: `Analyze this document focusing on main conceptual themes and relationships.
Identify major themes that represent complete, independent ideas forming logical groupings of related concepts that support the document's main purpose. Consider the fundamental ideas presented, how they relate, and how the information is structured.
Avoid topics that are too specific (individual examples), too broad (entire subject areas), or isolated facts without context.`,
		subtopics: `For the theme '%s', identify key supporting concepts and related ideas.
Each subtopic should represent a distinct aspect of the main theme, provide meaningful context, and connect to the overall narrative. Consider the main points about this theme, illustrating examples, and supporting evidence.`,
		details: `For the subtopic '%s', extract specific supporting information and examples.
Focus on concrete examples, supporting evidence, key definitions, important relationships, specific applications, and notable implications. Include details that illustrate the concept and aid understanding.`,
	},
}

func promptsFor(dt DocumentType) promptSet {
	if p, ok := typePrompts[dt]; ok {
		return p
	}
	return typePrompts[TypeGeneral]
}

// groundingRules keeps extraction tied to the source text. Fabricated
// statistics and outside knowledge are the main failure mode this guards
// against; the verification pass catches what slips through.
const groundingRules = `IMPORTANT:
1. DO NOT include specific statistics, percentages, or numerical data unless explicitly stated in the source text
2. DO NOT refer to studies, surveys, or analyses that are not mentioned in the document
3. Keep your content strictly based on what is in the document, not general knowledge about the topic
4. Use general descriptions rather than specific numbers if the document does not provide exact figures`

const responseFormat = `Respond with ONLY a JSON array of objects, each with a "name" string and a "confidence" number between 0 and 1 reflecting how strongly the source text supports it.
Example: [{"name": "First Concept", "confidence": 0.9}, {"name": "Second Concept", "confidence": 0.7}]`

// BuildTopicsPrompt creates the topic-extraction prompt for one chunk.
func BuildTopicsPrompt(dt DocumentType, chunkText string) string {
	var sb strings.Builder
	sb.WriteString("You are an expert at identifying unique, distinct main topics within content.\n\n")
	sb.WriteString(promptsFor(dt).topics)
	sb.WriteString(`

Additional requirements:
1. Each topic must be truly distinct from others - avoid overlapping concepts
2. Combine similar themes into single, well-defined topics
3. Ensure topics are specific enough to be meaningful but general enough to support subtopics
4. Prioritize broader topics that can encompass multiple subtopics

`)
	sb.WriteString(groundingRules)
	sb.WriteString("\n\nCurrent content chunk:\n")
	sb.WriteString(chunkText)
	sb.WriteString("\n\n")
	sb.WriteString(responseFormat)
	return sb.String()
}

// BuildChildrenPrompt creates the prompt extracting children of parent at the
// given level (subtopics of a topic, or details of a subtopic) from one chunk.
func BuildChildrenPrompt(dt DocumentType, parentLabel string, level document.Level, chunkText string) string {
	p := promptsFor(dt)
	var role, body string
	switch level {
	case document.LevelSubtopic:
		role = "You are an expert at identifying distinct, relevant subtopics that support a main topic.\n\n"
		body = fmt.Sprintf(p.subtopics, parentLabel)
	default:
		role = "You are an expert at identifying distinct, important details that support a specific subtopic.\n\n"
		body = fmt.Sprintf(p.details, parentLabel)
	}
	var sb strings.Builder
	sb.WriteString(role)
	sb.WriteString(body)
	sb.WriteString("\n\nOnly include concepts that this chunk actually supports.\n\n")
	sb.WriteString(groundingRules)
	sb.WriteString("\n\nCurrent content chunk:\n")
	sb.WriteString(chunkText)
	sb.WriteString("\n\n")
	sb.WriteString(responseFormat)
	return sb.String()
}

func buildDetectionPrompt(sample string) string {
	return `You are analyzing a document to determine its primary type so the most appropriate conceptual organization strategy can be chosen.

Categories:
TECHNICAL - system specifications, API documentation, implementation details; focuses on HOW things work
SCIENTIFIC - research findings, experimental data, hypotheses, methods, statistical results
NARRATIVE - tells a story; character development, plot progression, descriptive language
BUSINESS - operations, strategy, market analysis, financial data, recommendations
ACADEMIC - scholarly research, theoretical frameworks, engagement with academic literature
LEGAL - laws, regulations, statutes, cases, rights and obligations, compliance
MEDICAL - clinical care, diagnoses, treatments, protocols, patient outcomes
INSTRUCTIONAL - teaching or skill development; learning objectives, exercises, assessments
ANALYTICAL - data analysis, trends, patterns, correlations, conclusions from data
PROCEDURAL - step-by-step instructions; HOW to accomplish specific tasks in sequence
GENERAL - broad or mixed content with no strong alignment to the above

Key differentiators: TECHNICAL describes system components, PROCEDURAL describes task steps. SCIENTIFIC centers on experiments, ACADEMIC on theory and discourse. ANALYTICAL centers on data patterns, SCIENTIFIC on hypothesis validation. INSTRUCTIONAL centers on learning, PROCEDURAL on task completion.

Return ONLY the category name that best matches the document's structure and purpose.

Document excerpt:
` + sample
}
