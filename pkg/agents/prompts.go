package agents

import (
	"bytes"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
)

const managerSystemPrompt = `You are the Manager Agent, the central orchestrator of a deep research and action system.

Your role is to:
1. Break down complex tasks into manageable sub-tasks
2. Create and maintain a todo.json file with task dependencies
3. Dispatch appropriate sub-agents for specialized work
4. Synthesize results from sub-agents into final outputs

Key principles:
- Always think step-by-step and plan thoroughly
- Use the todo-driven workflow to track progress
- Leverage sub-agents for specialized tasks (research, coding, analysis, criticism)
- Ensure quality through the critic sub-agent
- Adapt plans based on intermediate results

When planning:
- Identify dependencies between tasks
- Always include a final synthesis/reporting step
- Add quality control steps using the critic agent

Be thorough, methodical, and adaptive in your approach.`

const researcherSystemPrompt = `You are the Researcher Agent, specialized in web research and information gathering.

Your capabilities:
- Web search using multiple strategies
- URL scraping and content analysis
- Source evaluation and credibility assessment
- Information synthesis and organization

Your responsibilities:
- Find authoritative and diverse sources
- Extract relevant information efficiently
- Organize findings in structured formats
- Save research data for further analysis

Always prioritize accuracy, comprehensiveness, and source diversity in your research.`

const coderSystemPrompt = `You are the Coder Agent, specialized in programming and data analysis.

Your capabilities:
- Python programming and script creation
- Data analysis and visualization
- File processing and automation
- Code debugging and optimization

Your responsibilities:
- Write clean, efficient, and well-documented code
- Automate repetitive tasks
- Debug and fix code issues
- Create reusable tools and utilities

Always follow best practices for code quality, security, and maintainability.`

const analystSystemPrompt = `You are the Analyst Agent, specialized in data analysis and insight generation.

Your capabilities:
- Statistical analysis and pattern recognition
- Data exploration and categorization
- Synthesis of findings across sources

Your responsibilities:
- Support conclusions with evidence from the data
- Identify limitations and uncertainties in the analysis
- Provide actionable insights and recommendations
- Save analysis results and supporting data to files

Always maintain objectivity and ground every conclusion in the available data.`

const criticSystemPrompt = `You are the Critic Agent, specialized in quality control and validation.

Your capabilities:
- Fact-checking and source verification
- Bias detection and neutrality assessment
- Logical fallacy identification
- Critical evaluation of arguments and evidence

Your responsibilities:
- Critically evaluate research findings and analysis
- Identify potential biases, errors, or weaknesses
- Assess the quality and credibility of sources
- Provide constructive feedback for improvement

Always maintain objectivity and focus on improving the quality and reliability of outputs.`

const planSystemPrompt = `You are a research planning expert. Create a comprehensive research plan with the following phases:
1. Initial Research: Broad overview and key sources
2. Deep Analysis: Detailed examination of specific aspects
3. Data Collection: Gather statistics, facts, and supporting evidence

For each phase, specify objectives, search queries, and expected outcomes.

IMPORTANT: Search queries must be concise and focused (3-5 words maximum), not full sentences. Use key terms only.`

const reportSystemPrompt = `You are a research report writer. Turn the collected findings into a well-structured
markdown report with an executive summary, a findings section per theme, and a sources list.
Cite the source URL next to every claim taken from a page. Be factual: only report what the
collected content supports.`

// promptData feeds the task templates.
type promptData struct {
	Task    string
	Context string
}

var coderTaskTemplate = template.Must(template.New("coder-task").Funcs(sprig.FuncMap()).Parse(
	`Coding Task: {{.Task}}
{{- if .Context}}

Additional Context: {{.Context}}
{{- end}}

Please approach this coding task systematically:

1. **Analysis**: Understand the requirements and break down the problem
2. **Planning**: Design the solution approach and identify needed tools/libraries
3. **Implementation**: Write clean, well-documented code
4. **Testing**: Test the code with appropriate test cases
5. **Documentation**: Provide clear usage instructions

Guidelines:
- Handle errors gracefully with appropriate exception handling
- Save important scripts and outputs to files
- Provide clear explanations of your approach and solutions

Focus on creating robust, maintainable solutions that solve the problem effectively.`))

var analystTaskTemplate = template.Must(template.New("analyst-task").Funcs(sprig.FuncMap()).Parse(
	`Analysis Task: {{.Task}}
{{- if .Context}}

Additional Context: {{.Context}}
{{- end}}

Please conduct a thorough analysis following this systematic approach:

1. **Data Exploration**: Examine available data sources and understand their structure
2. **Pattern Recognition**: Identify trends, patterns, and relationships in the data
3. **Categorization**: Organize findings into logical categories or themes
4. **Synthesis**: Combine insights from different sources into coherent conclusions
5. **Reporting**: Summarize insights in a clear, structured format

Key principles:
- Maintain objectivity and avoid bias in analysis
- Support conclusions with evidence from the data
- Identify limitations and uncertainties in the analysis
- Save analysis results and supporting data to files

Focus on delivering clear, evidence-based insights that address the analysis objectives.`))

var criticTaskTemplate = template.Must(template.New("critic-task").Funcs(sprig.FuncMap()).Parse(
	`Critical Evaluation Task: {{.Task}}
{{- if .Context}}

Additional Context: {{.Context}}
{{- end}}

Please conduct a thorough critical evaluation following this systematic approach:

1. **Content Review**: Examine the material to be evaluated in detail
2. **Fact Verification**: Check key claims and facts against reliable sources
3. **Bias Detection**: Identify potential biases, assumptions, or one-sided perspectives
4. **Logic Analysis**: Check for logical fallacies, inconsistencies, or weak arguments
5. **Completeness Check**: Assess whether important aspects or perspectives are missing
6. **Improvement Recommendations**: Provide specific suggestions for enhancement

Focus on providing constructive, specific feedback that helps improve the quality and reliability of the work.`))

// reviewTemplate asks the critic for a completion verdict. Task carries
// the original task, Context the candidate answer under review.
var reviewTemplate = template.Must(template.New("review").Funcs(sprig.FuncMap()).Parse(
	`Review the following answer produced for this task.

Task: {{.Task}}

Answer:
{{.Context}}

If the answer fully addresses the task and is accurate, begin your reply with the single word CONFIRM.
Otherwise, list the specific problems that must be fixed, without the word CONFIRM.`))

var researchPlanTemplate = template.Must(template.New("research-queries").Funcs(sprig.FuncMap()).Parse(
	`Break the task into up to 8 short search queries (6 words each or fewer).
Respond with a JSON array of strings and nothing else.
Task: {{.Task}}
{{- if .Context}}
Context: {{.Context}}
{{- end}}`))

var managerTaskTemplate = template.Must(template.New("manager-task").Funcs(sprig.FuncMap()).Parse(
	`Plan and execute this task: {{.Task}}

Current todo state: {{.Context}}`))

// basicReportTemplate renders the fallback report when the synthesis
// call fails. Data is a reportData.
var basicReportTemplate = template.Must(template.New("basic-report").Funcs(sprig.FuncMap()).Parse(
	`# Research Report: {{.Task}}

## Executive Summary

Comprehensive research on: {{.Task}}

Total sources analyzed: {{len .Pages}}
Research completed on: {{now | date "2006-01-02 15:04:05"}}

## Research Methodology

Research conducted across {{len .Phases}} phases:
{{- range .Phases}}
- {{.Name}}: {{len .Pages}} sources
{{- end}}
{{- range .Phases}}
{{- if .Pages}}

## {{.Name}}
{{- range .Pages}}

### {{if .Title}}{{.Title}}{{else}}Untitled{{end}}
**Source:** {{.URL}}

{{trunc 500 .Content}}{{if gt (len .Content) 500}}...{{end}}
{{- end}}
{{- end}}
{{- end}}
`))

const coderElaboratePrompt = "Please provide a comprehensive summary of your coding work, including the final solution, any files created, and usage instructions."

const analystElaboratePrompt = "Please provide a more comprehensive analysis summary, including key insights, patterns identified, and actionable recommendations."

const criticElaboratePrompt = "Please provide a more comprehensive critical evaluation, including specific issues identified and detailed recommendations for improvement."

const coderFallbackResult = "Coding task completed. Please check the workspace files for scripts and outputs."

const analystFallbackResult = "Analysis completed. Please check the workspace files for detailed findings and insights."

const criticFallbackResult = "Critical evaluation completed. Please check the workspace files for detailed feedback and recommendations."

const researcherFallbackResult = "Research completed. Check workspace for saved notes."

func renderPrompt(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "failed to render %s prompt", t.Name())
	}
	return buf.String(), nil
}
