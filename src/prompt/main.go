package prompt

import (
	"github.com/AlecAivazis/survey/v2"
)

// Asker asks the operator for values.
type Asker interface {
	// AskInput asks for free text, offering defaultValue.
	AskInput(message, defaultValue string) (string, error)
}

type Survey struct{}

func NewSurveyAsker() *Survey {
	return &Survey{}
}

func (s *Survey) AskInput(message, defaultValue string) (string, error) {
	question := &survey.Input{
		Message: message,
		Default: defaultValue,
	}
	var answer string
	err := survey.AskOne(question, &answer)
	if err != nil {
		return "", err
	}
	return answer, nil
}
